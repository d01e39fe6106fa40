package fnkit

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// Stage is a single step of the pipeline orchestrator: an explicit function
// from an input envelope to an output envelope (or error), with no shared
// base class. Optional stages become conditionals at the call site, not a
// type hierarchy — see pkg/pipeline.
type Stage[In, Out any] func(context.Context, In) (Out, error)

// Then composes two stages into one, short-circuiting on the first error
// and recording an otel child span per stage.
func Then[A, B, C any](name string, first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) (C, error) {
		var zero C
		b, err := TracedStage("stage."+name+".first", first)(ctx, a)
		if err != nil {
			return zero, err
		}
		return TracedStage("stage."+name+".second", second)(ctx, b)
	}
}

// TracedStage wraps a stage with an otel span, recording errors on failure.
func TracedStage[In, Out any](name string, stage Stage[In, Out]) Stage[In, Out] {
	tracer := otel.Tracer("creatord/pipeline")
	return func(ctx context.Context, in In) (Out, error) {
		ctx, span := tracer.Start(ctx, name)
		defer span.End()
		out, err := stage(ctx, in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}

// MapStage wraps a pure function as a Stage.
func MapStage[In, Out any](f func(In) Out) Stage[In, Out] {
	return func(_ context.Context, in In) (Out, error) {
		return f(in), nil
	}
}
