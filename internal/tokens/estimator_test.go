package tokens

import "testing"

func TestCount(t *testing.T) {
	e := NewEstimator()

	if got := e.Count("gpt-4o", ""); got != 0 {
		t.Errorf("empty text = %d tokens", got)
	}

	n := e.Count("gpt-4o", "Hello, world! How are you today?")
	if n <= 0 || n > 20 {
		t.Errorf("token count = %d, want a small positive number", n)
	}

	// Unknown models still produce a usable estimate.
	if got := e.Count("some-local-model:7b", "four words of text"); got <= 0 {
		t.Errorf("fallback count = %d", got)
	}
}

func TestCountMessages(t *testing.T) {
	e := NewEstimator()

	single := e.Count("gpt-4o-mini", "hello")
	total := e.CountMessages("gpt-4o-mini", []string{"hello", "hello"})
	if total != 2*(single+perMessageOverhead) {
		t.Errorf("CountMessages = %d, want %d", total, 2*(single+perMessageOverhead))
	}
}
