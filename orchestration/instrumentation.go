package orchestration

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/querysynth/telemetry"
)

// Span names
const (
	SpanSynthesize = "querysynth.synthesize"
	SpanIteration  = "querysynth.iteration"
)

// Span attribute keys
const (
	AttrTaskID       = "querysynth.task_id"
	AttrDataSource   = "querysynth.data_source"
	AttrContextMode  = "querysynth.context_mode"
	AttrIteration    = "querysynth.iteration"
	AttrAction       = "querysynth.action"
	AttrState        = "querysynth.state"
	AttrFixAttempts  = "querysynth.fix_attempts"
	AttrExecutions   = "querysynth.executions"
	AttrPromptTokens = "querysynth.prompt_tokens"
	AttrCategory     = "querysynth.error_category"
)

func startTaskSpan(ctx context.Context, task *Task, mode string) (context.Context, trace.Span) {
	return telemetry.StartSpan(ctx, SpanSynthesize,
		attribute.String(AttrTaskID, task.ID),
		attribute.String(AttrDataSource, task.DataSource),
		attribute.String(AttrContextMode, mode),
	)
}

func startIterationSpan(ctx context.Context, iteration int) (context.Context, trace.Span) {
	return telemetry.StartSpan(ctx, SpanIteration, attribute.Int(AttrIteration, iteration))
}

// endIterationSpan records where the iteration left the loop
func endIterationSpan(span trace.Span, state State, action ActionKind, err error) {
	span.SetAttributes(
		attribute.String(AttrState, string(state)),
		attribute.String(AttrAction, string(action)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func finishTaskSpan(span trace.Span, result *SynthesisResult) {
	span.SetAttributes(
		attribute.String(AttrState, string(result.Status)),
		attribute.Int(AttrFixAttempts, result.AttemptsUsed),
		attribute.Int(AttrExecutions, result.ExecutionAttempts),
		attribute.Int(AttrIteration, result.Iterations),
	)
	if result.Err != nil && result.Status == StateFailed {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func recordPrompt(ctx context.Context, prompt Prompt, mode string) {
	telemetry.Histogram(telemetry.MetricPromptTokens, float64(prompt.Tokens), "mode", mode)
	telemetry.SetSpanAttributes(ctx,
		attribute.Int(AttrPromptTokens, prompt.Tokens),
		attribute.Bool("querysynth.repair", prompt.Repair),
	)
}

func recordAction(ctx context.Context, kind ActionKind, start time.Time, outcome ActionOutcome) {
	status := "ok"
	switch {
	case outcome.Err != nil:
		status = "error"
	case outcome.Delta.Failed():
		status = "invalid"
	}
	telemetry.Counter(telemetry.MetricActions, "action", string(kind), "status", status)
	telemetry.Duration(telemetry.MetricActionDuration, start, "action", string(kind))
	if outcome.Delta.Executed {
		telemetry.Counter(telemetry.MetricExecutions, "succeeded", strconv.FormatBool(outcome.Delta.Succeeded))
	}
	telemetry.AddSpanEvent(ctx, "action."+string(kind), attribute.String("status", status))
}

func recordRepair(ctx context.Context, cl Classification, fixAttempts int) {
	telemetry.Counter(telemetry.MetricRepairs, "category", string(cl.Category))
	telemetry.AddSpanEvent(ctx, "repair",
		attribute.String(AttrCategory, string(cl.Category)),
		attribute.Int(AttrFixAttempts, fixAttempts),
		attribute.Bool("querysynth.repairable", cl.Repairable),
	)
}

func recordTask(result *SynthesisResult, start time.Time) {
	status := string(result.Status)
	telemetry.Counter(telemetry.MetricTasks, "status", status)
	telemetry.Duration(telemetry.MetricTaskDuration, start, "status", status)
	telemetry.Histogram(telemetry.MetricIterations, float64(result.Iterations), "status", status)
}
