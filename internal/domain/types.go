// Package domain holds the canonical types shared by every layer of the
// gateway: wire-format identifiers, resolved model references, token usage
// accounting, and the error taxonomy.
package domain

import "fmt"

// WireFormat identifies the JSON dialect a provider (or client) speaks.
// The gateway supports exactly two.
type WireFormat string

const (
	WireFormatOpenAI    WireFormat = "openai"
	WireFormatAnthropic WireFormat = "anthropic"
)

// ParseWireFormat validates a configured wire format string.
func ParseWireFormat(s string) (WireFormat, error) {
	switch WireFormat(s) {
	case WireFormatOpenAI:
		return WireFormatOpenAI, nil
	case WireFormatAnthropic:
		return WireFormatAnthropic, nil
	default:
		return "", fmt.Errorf("unsupported wire format %q (expected %q or %q)",
			s, WireFormatOpenAI, WireFormatAnthropic)
	}
}

// ResolvedModel is the outcome of alias resolution: a concrete provider and
// the model name to send upstream. It lives only for the duration of one
// request.
type ResolvedModel struct {
	Provider    string
	Model       string
	ChainLength int
}

// String renders the provider-qualified model reference.
func (r ResolvedModel) String() string {
	return r.Provider + ":" + r.Model
}

// Outcome classifies how a request finished. Recorded exactly once per
// request by the finalization sink.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeError        Outcome = "error"
	OutcomeDisconnected Outcome = "disconnected"
)
