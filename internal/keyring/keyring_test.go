package keyring

import (
	"errors"
	"testing"
)

func TestNextKeyRoundRobin(t *testing.T) {
	ring := New()
	keys := []string{"a", "b", "c"}

	var got []string
	for i := 0; i < 4; i++ {
		k, err := ring.NextKey("openai", keys, nil)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, k)
	}

	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("selection %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNextKeyIndexIsPerProvider(t *testing.T) {
	ring := New()
	keys := []string{"a", "b"}

	if k, _ := ring.NextKey("openai", keys, nil); k != "a" {
		t.Errorf("openai first key = %q", k)
	}
	if k, _ := ring.NextKey("anthropic", keys, nil); k != "a" {
		t.Errorf("anthropic first key = %q, rotation state must not be shared", k)
	}
	if k, _ := ring.NextKey("openai", keys, nil); k != "b" {
		t.Errorf("openai second key = %q", k)
	}
}

func TestNextKeySkipsExcluded(t *testing.T) {
	ring := New()
	keys := []string{"a", "b", "c"}
	excluded := map[string]struct{}{"a": {}, "b": {}}

	for i := 0; i < 3; i++ {
		k, err := ring.NextKey("openai", keys, excluded)
		if err != nil {
			t.Fatal(err)
		}
		if k != "c" {
			t.Errorf("selection %d = %q, want %q", i, k, "c")
		}
	}
}

func TestNextKeyExhausted(t *testing.T) {
	ring := New()

	if _, err := ring.NextKey("openai", nil, nil); !errors.Is(err, ErrExhausted) {
		t.Errorf("no keys: err = %v, want ErrExhausted", err)
	}

	keys := []string{"a", "b"}
	excluded := map[string]struct{}{"a": {}, "b": {}}
	if _, err := ring.NextKey("openai", keys, excluded); !errors.Is(err, ErrExhausted) {
		t.Errorf("all excluded: err = %v, want ErrExhausted", err)
	}
}
