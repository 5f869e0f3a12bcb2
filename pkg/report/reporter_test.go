package report

import (
	"context"
	"testing"
)

type capturingPublisher struct {
	eventType string
	stage     string
	data      map[string]interface{}
}

func (p *capturingPublisher) PublishEvent(ctx context.Context, eventType, stage string, data map[string]interface{}) error {
	p.eventType = eventType
	p.stage = stage
	p.data = data
	return nil
}

func TestKafkaReporterFieldMapping(t *testing.T) {
	publisher := &capturingPublisher{}
	reporter := &KafkaReporter{producer: publisher}

	err := reporter.Report(context.Background(), Event{
		RunID:  "run-1",
		Stage:  StageCohort,
		Detail: &CohortReport{FinalSize: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if publisher.stage != StageCohort {
		t.Fatalf("stage field carries %q, want %q", publisher.stage, StageCohort)
	}
	if publisher.eventType != EventTypePipelineReport {
		t.Fatalf("event type carries %q, want %q", publisher.eventType, EventTypePipelineReport)
	}
	if publisher.data["run_id"] != "run-1" {
		t.Fatalf("run_id missing from payload: %+v", publisher.data)
	}
	detail, ok := publisher.data["detail"].(map[string]interface{})
	if !ok {
		t.Fatalf("detail not serialized as an object: %+v", publisher.data)
	}
	if detail["final_size"] != float64(10) {
		t.Fatalf("detail lost report fields: %+v", detail)
	}
}
