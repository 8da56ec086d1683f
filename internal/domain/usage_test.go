package domain

import "testing"

func TestUsageMergeKeepsLargerCounts(t *testing.T) {
	// Streaming reports input tokens at message start and output tokens at
	// the end; merging the two reports must keep both.
	u := Usage{InputTokens: 25, OutputTokens: 1}
	u.Merge(Usage{OutputTokens: 9, CacheReadInputTokens: 5})

	want := Usage{InputTokens: 25, OutputTokens: 9, CacheReadInputTokens: 5}
	if u != want {
		t.Errorf("merged = %+v, want %+v", u, want)
	}
	if u.Total() != 34 {
		t.Errorf("total = %d", u.Total())
	}
}

func TestParseWireFormat(t *testing.T) {
	if _, err := ParseWireFormat("openai"); err != nil {
		t.Error(err)
	}
	if _, err := ParseWireFormat("anthropic"); err != nil {
		t.Error(err)
	}
	if _, err := ParseWireFormat("grpc"); err == nil {
		t.Error("unsupported format must be rejected")
	}
}
