package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "consoledrive"

// Metrics holds all OTEL metric instruments for consoledrive.
// All counters are cumulative (monotonic). Every record method is safe to
// call on a nil receiver, so core packages never need nil checks.
type Metrics struct {
	// Channel byte counters (partitioned by channel + direction).
	ChannelBytes metric.Int64Counter

	// Expect engine counters (partitioned by channel + outcome).
	Matches metric.Int64Counter

	// Session counters.
	Commands        metric.Int64Counter
	EchoMismatches  metric.Int64Counter
	CommandDuration metric.Float64Histogram

	// LLM token counters for triage (partitioned by provider + model).
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ChannelBytes, err = meter.Int64Counter("channel.bytes",
		metric.WithDescription("Bytes crossing a channel, partitioned by channel and direction"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	m.Matches, err = meter.Int64Counter("expect.matches",
		metric.WithDescription("Expect attempts that completed, partitioned by channel and outcome (match, no_match)"))
	if err != nil {
		return nil, err
	}

	m.Commands, err = meter.Int64Counter("session.commands",
		metric.WithDescription("Shell commands executed over the console"))
	if err != nil {
		return nil, err
	}

	m.EchoMismatches, err = meter.Int64Counter("session.echo_mismatches",
		metric.WithDescription("Writes whose echoed bytes diverged from what was sent"))
	if err != nil {
		return nil, err
	}

	m.CommandDuration, err = meter.Float64Histogram("session.command.duration",
		metric.WithDescription("Wall-clock time from prompt wait to captured output per command"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.InputTokens, err = meter.Int64Counter("llm.tokens.input",
		metric.WithDescription("Total LLM input tokens consumed by triage"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.OutputTokens, err = meter.Int64Counter("llm.tokens.output",
		metric.WithDescription("Total LLM output tokens consumed by triage"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordChannelBytes records bytes read from or written to a channel.
func (m *Metrics) RecordChannelBytes(ctx context.Context, channel, direction string, n int64) {
	if m == nil {
		return
	}
	m.ChannelBytes.Add(ctx, n, metric.WithAttributes(
		attribute.String("channel.name", channel),
		attribute.String("channel.direction", direction),
	))
}

// RecordMatch records the outcome of one completed expect call.
func (m *Metrics) RecordMatch(ctx context.Context, channel string, matched bool) {
	if m == nil {
		return
	}
	outcome := "match"
	if !matched {
		outcome = "no_match"
	}
	m.Matches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel.name", channel),
		attribute.String("expect.outcome", outcome),
	))
}

// RecordCommand records a completed shell command and its duration.
func (m *Metrics) RecordCommand(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.Add(ctx, 1)
	m.CommandDuration.Record(ctx, d.Seconds())
}

// RecordEchoMismatch records a protocol desync detected by echo verification.
func (m *Metrics) RecordEchoMismatch(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.EchoMismatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel.name", channel),
	))
}

// RecordTokens records LLM token usage on the metric counters.
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, input, output int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
	m.InputTokens.Add(ctx, input, attrs)
	m.OutputTokens.Add(ctx, output, attrs)
}
