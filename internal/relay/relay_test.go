package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/llmwire/llmwire/internal/convert"
	"github.com/llmwire/llmwire/internal/domain"
)

type frameCollector struct {
	frames  []convert.Frame
	failAt  int // fail on the nth write, 0 = never
	written int
}

func (c *frameCollector) WriteFrame(f convert.Frame) error {
	c.written++
	if c.failAt > 0 && c.written >= c.failAt {
		return errors.New("client gone")
	}
	c.frames = append(c.frames, f)
	return nil
}

type finalization struct {
	outcome domain.Outcome
	usage   domain.Usage
	err     error
}

func countingFinalizer(count *atomic.Int32, last *finalization) Finalizer {
	return func(outcome domain.Outcome, usage domain.Usage, finishReason string, err error) {
		count.Add(1)
		*last = finalization{outcome: outcome, usage: usage, err: err}
	}
}

const openaiStream = `data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}

data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":null}]}

data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}

data: [DONE]

`

func TestRunFinalizesOnceOnCleanStream(t *testing.T) {
	var count atomic.Int32
	var last finalization

	conv := convert.NewStreamConverter(domain.WireFormatOpenAI, domain.WireFormatOpenAI, "m", "r1")
	r := New(conv, countingFinalizer(&count, &last))
	w := &frameCollector{}

	if err := r.Run(context.Background(), io.NopCloser(strings.NewReader(openaiStream)), w); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if count.Load() != 1 {
		t.Fatalf("finalized %d times, want exactly 1", count.Load())
	}
	if last.outcome != domain.OutcomeSuccess {
		t.Errorf("outcome = %v", last.outcome)
	}
	if last.usage.InputTokens != 5 || last.usage.OutputTokens != 1 {
		t.Errorf("usage = %+v", last.usage)
	}
	if !w.frames[len(w.frames)-1].Done {
		t.Error("last frame should be the [DONE] sentinel")
	}
}

func TestRunFinalizesOnceOnClientDisconnect(t *testing.T) {
	var count atomic.Int32
	var last finalization

	conv := convert.NewStreamConverter(domain.WireFormatOpenAI, domain.WireFormatOpenAI, "m", "r2")
	r := New(conv, countingFinalizer(&count, &last))
	w := &frameCollector{failAt: 2}

	err := r.Run(context.Background(), io.NopCloser(strings.NewReader(openaiStream)), w)
	if err == nil {
		t.Fatal("expected write error")
	}
	if count.Load() != 1 {
		t.Fatalf("finalized %d times, want exactly 1", count.Load())
	}
	if last.outcome != domain.OutcomeDisconnected {
		t.Errorf("outcome = %v, want disconnected", last.outcome)
	}
}

func TestRunFinalizesOnceOnDecodeFailure(t *testing.T) {
	var count atomic.Int32
	var last finalization

	// Anthropic-to-openai conversion rejects unparseable payloads.
	conv := convert.NewStreamConverter(domain.WireFormatAnthropic, domain.WireFormatOpenAI, "m", "r3")
	r := New(conv, countingFinalizer(&count, &last))
	w := &frameCollector{}

	stream := "event: message_start\ndata: {not json\n\n"
	err := r.Run(context.Background(), io.NopCloser(strings.NewReader(stream)), w)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if count.Load() != 1 {
		t.Fatalf("finalized %d times, want exactly 1", count.Load())
	}
	if last.outcome != domain.OutcomeError {
		t.Errorf("outcome = %v, want error", last.outcome)
	}
	// The client still gets a terminal frame.
	if len(w.frames) == 0 || !w.frames[len(w.frames)-1].Done {
		t.Error("terminal frame missing after decode failure")
	}
}

func TestRunEstimatesUsageOnAbruptEnd(t *testing.T) {
	var count atomic.Int32
	var last finalization

	// Stream ends without a usage-bearing chunk or [DONE].
	stream := `data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"hello world"},"finish_reason":null}]}

`
	conv := convert.NewStreamConverter(domain.WireFormatOpenAI, domain.WireFormatOpenAI, "m", "r4")
	r := New(conv, countingFinalizer(&count, &last),
		WithOutputEstimator(func(text string) int { return len(strings.Fields(text)) }))
	w := &frameCollector{}

	if err := r.Run(context.Background(), io.NopCloser(strings.NewReader(stream)), w); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count.Load() != 1 {
		t.Fatalf("finalized %d times, want exactly 1", count.Load())
	}
	if last.usage.OutputTokens != 2 {
		t.Errorf("estimated output tokens = %d, want 2", last.usage.OutputTokens)
	}
	// Abrupt end still produces a synthesized terminal chunk before the
	// sentinel.
	if len(w.frames) < 2 {
		t.Fatalf("frames = %d, want synthesized terminal frames", len(w.frames))
	}
}
