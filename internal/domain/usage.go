package domain

// Usage is the canonical token accounting record. Every field is always
// present; a protocol that does not report a field contributes zero, so
// downstream aggregation never has to special-case missing counts.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// Total returns the combined input and output token count.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Merge folds counts from a later report into u, keeping the larger value
// per field. Streaming protocols report input tokens early and output
// tokens late; merging keeps whichever report carried each number.
func (u *Usage) Merge(other Usage) {
	if other.InputTokens > u.InputTokens {
		u.InputTokens = other.InputTokens
	}
	if other.OutputTokens > u.OutputTokens {
		u.OutputTokens = other.OutputTokens
	}
	if other.CacheReadInputTokens > u.CacheReadInputTokens {
		u.CacheReadInputTokens = other.CacheReadInputTokens
	}
	if other.CacheCreationInputTokens > u.CacheCreationInputTokens {
		u.CacheCreationInputTokens = other.CacheCreationInputTokens
	}
}
