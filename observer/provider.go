package observer

import (
	"context"
	"time"

	oni "github.com/onios/oni"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	onilog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedProvider wraps an oni.Provider with OTEL instrumentation.
type ObservedProvider struct {
	inner oni.Provider
	inst  *Instruments
}

// WrapProvider returns an instrumented protocol adapter that emits traces,
// metrics, and logs.
func WrapProvider(inner oni.Provider, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst}
}

func (o *ObservedProvider) Name() string { return o.inner.Name() }

func (o *ObservedProvider) StreamTurn(ctx context.Context, cred oni.Credential, req oni.TurnRequest, ch chan<- oni.Event) (oni.TurnOutcome, error) {
	spanAttrs := []trace.SpanStartOption{
		trace.WithAttributes(AttrProvider.String(o.inner.Name())),
	}
	if len(req.Tools) > 0 {
		toolNames := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			toolNames[i] = t.Name
		}
		spanAttrs = append(spanAttrs, trace.WithAttributes(
			AttrToolCount.Int(len(req.Tools)),
			AttrToolNames.StringSlice(toolNames),
		))
	}

	ctx, span := o.inst.Tracer.Start(ctx, "turn.stream", spanAttrs...)
	defer span.End()
	start := time.Now()

	// Wrap the channel to count chunks. Buffer generously so the inner
	// adapter never blocks on send while the forwarder is mid-handoff.
	bufSize := max(cap(ch), 64)
	wrapped := make(chan oni.Event, bufSize)
	chunks := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for ev := range wrapped {
			chunks++
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	outcome, err := o.inner.StreamTurn(ctx, cred, req, wrapped)
	<-done // wait for the forwarder before reading chunks

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrStreamChunks.Int(chunks),
		AttrTurnID.String(outcome.TurnID),
		AttrTokensInput.Int(outcome.Usage.InputTokens),
		AttrTokensOutput.Int(outcome.Usage.OutputTokens),
	)

	attrs := metric.WithAttributes(AttrProvider.String(o.inner.Name()))
	o.inst.TokenUsage.Add(ctx, int64(outcome.Usage.InputTokens), metric.WithAttributes(
		AttrProvider.String(o.inner.Name()),
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, int64(outcome.Usage.OutputTokens), metric.WithAttributes(
		AttrProvider.String(o.inner.Name()),
		attribute.String("direction", "output"),
	))
	o.inst.TurnRequests.Add(ctx, 1, metric.WithAttributes(
		AttrProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.ToolCalls.Add(ctx, int64(len(outcome.ToolCalls)), attrs)
	o.inst.TurnDuration.Record(ctx, durationMs, attrs)

	// Structured log
	var rec onilog.Record
	rec.SetSeverity(onilog.SeverityInfo)
	rec.SetBody(onilog.StringValue("turn completed"))
	rec.AddAttributes(
		onilog.String("turn.provider", o.inner.Name()),
		onilog.String("turn.id", outcome.TurnID),
		onilog.Int("turn.tokens.input", outcome.Usage.InputTokens),
		onilog.Int("turn.tokens.output", outcome.Usage.OutputTokens),
		onilog.Int("turn.tool_calls", len(outcome.ToolCalls)),
		onilog.Float64("turn.duration_ms", durationMs),
		onilog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return outcome, err
}

// Compile-time interface check.
var _ oni.Provider = (*ObservedProvider)(nil)
