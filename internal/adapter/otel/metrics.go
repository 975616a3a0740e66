package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vareon"

// Metrics holds all engine metric instruments.
type Metrics struct {
	JobsStarted    metric.Int64Counter
	JobsCompleted  metric.Int64Counter
	JobsFailed     metric.Int64Counter
	JobsSuspended  metric.Int64Counter
	ModelCalls     metric.Int64Counter
	ToolExecutions metric.Int64Counter
	PromptTokens   metric.Int64Counter
	OutputTokens   metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.JobsStarted, err = meter.Int64Counter("vareon.jobs.started",
		metric.WithDescription("Number of jobs started"))
	if err != nil {
		return nil, err
	}

	m.JobsCompleted, err = meter.Int64Counter("vareon.jobs.completed",
		metric.WithDescription("Number of jobs completed"))
	if err != nil {
		return nil, err
	}

	m.JobsFailed, err = meter.Int64Counter("vareon.jobs.failed",
		metric.WithDescription("Number of jobs failed"))
	if err != nil {
		return nil, err
	}

	m.JobsSuspended, err = meter.Int64Counter("vareon.jobs.suspended",
		metric.WithDescription("Number of jobs suspended awaiting human input"))
	if err != nil {
		return nil, err
	}

	m.ModelCalls, err = meter.Int64Counter("vareon.model.calls",
		metric.WithDescription("Number of model calls issued"))
	if err != nil {
		return nil, err
	}

	m.ToolExecutions, err = meter.Int64Counter("vareon.tool.executions",
		metric.WithDescription("Number of tool executions"))
	if err != nil {
		return nil, err
	}

	m.PromptTokens, err = meter.Int64Counter("vareon.model.prompt_tokens",
		metric.WithDescription("Prompt tokens consumed"))
	if err != nil {
		return nil, err
	}

	m.OutputTokens, err = meter.Int64Counter("vareon.model.output_tokens",
		metric.WithDescription("Completion tokens produced"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
