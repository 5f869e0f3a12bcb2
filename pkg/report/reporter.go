package report

import (
	"context"
	"encoding/json"

	"github.com/cohortforge/platform/pkg/common/kafka"
	"github.com/cohortforge/platform/pkg/common/logger"
)

// Event is one stage report emitted during a pipeline run.
type Event struct {
	RunID  string
	Stage  string
	Detail interface{}
}

// Reporter consumes stage reports. Computation never renders its own output;
// it returns report structs and the configured reporters decide what to do
// with them.
type Reporter interface {
	Report(ctx context.Context, event Event) error
}

// LogReporter renders stage reports to the structured log.
type LogReporter struct{}

func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

func (r *LogReporter) Report(ctx context.Context, event Event) error {
	logger.Log.WithFields(map[string]interface{}{
		"run_id": event.RunID,
		"stage":  event.Stage,
		"detail": event.Detail,
	}).Info("Pipeline stage report")
	return nil
}

// auditPublisher is the slice of the kafka producer the reporter needs.
type auditPublisher interface {
	PublishEvent(ctx context.Context, eventType, stage string, data map[string]interface{}) error
}

// EventTypePipelineReport classifies pipeline stage reports on the audit bus.
const EventTypePipelineReport = "pipeline.report"

// KafkaReporter publishes stage reports to the audit topic.
type KafkaReporter struct {
	producer auditPublisher
}

func NewKafkaReporter(producer *kafka.Producer) *KafkaReporter {
	return &KafkaReporter{producer: producer}
}

func (r *KafkaReporter) Report(ctx context.Context, event Event) error {
	data := map[string]interface{}{"run_id": event.RunID}
	if event.Detail != nil {
		detailBytes, err := json.Marshal(event.Detail)
		if err != nil {
			return err
		}
		detail := map[string]interface{}{}
		if err := json.Unmarshal(detailBytes, &detail); err != nil {
			return err
		}
		data["detail"] = detail
	}
	return r.producer.PublishEvent(ctx, EventTypePipelineReport, event.Stage, data)
}

// Multi fans one event out to several reporters; the first error wins but all
// reporters are attempted.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, event Event) error {
	var firstErr error
	for _, reporter := range m {
		if reporter == nil {
			continue
		}
		if err := reporter.Report(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
