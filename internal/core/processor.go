package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nautilus-server/internal/attestation"
	"nautilus-server/internal/compute"
	"nautilus-server/internal/metrics"
)

const maxLoggedStderr = 4096

type Stage string

const (
	StageReceived   Stage = "received"
	StageInvoking   Stage = "invoking"
	StageValidating Stage = "validating"
	StageAttesting  Stage = "attesting"
	StageSigned     Stage = "signed"
)

type Kind string

const (
	KindInvalidRequest   Kind = "InvalidRequest"
	KindLaunchFailure    Kind = "LaunchFailure"
	KindExecutionFailure Kind = "ExecutionFailure"
	KindEncodingError    Kind = "EncodingError"
	KindSchemaError      Kind = "SchemaError"
	KindClockError       Kind = "ClockError"
	KindSigningError     Kind = "SigningError"
	KindInternal         Kind = "Internal"
)

// StageError is the terminal error of a request. It records the stage the
// request failed in and the kind of failure; errors.Is still matches the
// underlying sentinel errors.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, compute.ErrUnknownComputation), errors.Is(err, compute.ErrInvalidArgument):
		return KindInvalidRequest
	case errors.Is(err, compute.ErrLaunchFailure):
		return KindLaunchFailure
	case errors.Is(err, compute.ErrExecutionFailure):
		return KindExecutionFailure
	case errors.Is(err, compute.ErrEncoding):
		return KindEncodingError
	case errors.Is(err, compute.ErrSchema):
		return KindSchemaError
	case errors.Is(err, attestation.ErrClock):
		return KindClockError
	case errors.Is(err, attestation.ErrSigning):
		return KindSigningError
	default:
		return KindInternal
	}
}

type Invoker interface {
	Invoke(ctx context.Context, req compute.Request) (compute.Outcome, error)
}

type SignedResult = attestation.Signed[compute.Result]

// Processor runs one request through invoke, parse and sign. It holds no
// per-request state and is shared by all handlers.
type Processor struct {
	invoker Invoker
	builder *attestation.Builder
	timeout time.Duration
	metrics *metrics.PipelineMetrics
}

func NewProcessor(invoker Invoker, builder *attestation.Builder, timeout time.Duration) *Processor {
	return &Processor{
		invoker: invoker,
		builder: builder,
		timeout: timeout,
		metrics: metrics.NewPipelineMetrics(),
	}
}

func (p *Processor) Signer() attestation.Signer {
	return p.builder.Signer()
}

func (p *Processor) fail(stage Stage, err error) error {
	kind := classify(err)
	p.metrics.Failures.WithLabelValues(string(stage), string(kind)).Inc()
	p.metrics.Requests.WithLabelValues("failed").Inc()

	attrs := []any{"stage", stage, "kind", kind, "error", err}
	var execErr *compute.ExecutionError
	if errors.As(err, &execErr) {
		stderr := execErr.Stderr
		if len(stderr) > maxLoggedStderr {
			stderr = stderr[:maxLoggedStderr]
		}
		attrs = append(attrs, "exit_code", execErr.ExitCode, "stderr", string(stderr))
	}
	if kind == KindInvalidRequest {
		slog.Warn("rejected process_data request", attrs...)
	} else {
		slog.Error("process_data request failed", attrs...)
	}

	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (p *Processor) Process(ctx context.Context, req compute.Request) (SignedResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.metrics.InFlight.Inc()
	outcome, err := p.invoker.Invoke(ctx, req)
	p.metrics.InFlight.Dec()
	if outcome.Duration > 0 {
		p.metrics.ComputationSeconds.Observe(outcome.Duration.Seconds())
	}
	if err != nil {
		return SignedResult{}, p.fail(StageInvoking, err)
	}

	result, err := compute.ParseResult(outcome)
	if err != nil {
		return SignedResult{}, p.fail(StageValidating, err)
	}

	signed, err := attestation.Build(p.builder, result)
	if err != nil {
		return SignedResult{}, p.fail(StageAttesting, err)
	}

	p.metrics.Requests.WithLabelValues("signed").Inc()
	p.metrics.AttestationsSigned.WithLabelValues(signed.Response.Intent.String()).Inc()

	slog.Info("signed computation result",
		"computation", outcome.Computation,
		"duration", outcome.Duration,
		"timestamp_ms", signed.Response.TimestampMs,
		"accuracy", result.Accuracy,
		"loss", result.Loss,
	)

	return signed, nil
}
