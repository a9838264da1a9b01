package messaging

import (
	"strings"
	"testing"
)

func TestStreamsCoverSubjects(t *testing.T) {
	subjects := []string{SubjectEventCreated, SubjectAnalysisCompleted, SubjectInsightsGenerated}
	for _, subject := range subjects {
		matched := 0
		for _, cfg := range StreamConfigs() {
			for _, pattern := range cfg.Subjects {
				prefix := strings.TrimSuffix(pattern, "*")
				if strings.HasPrefix(subject, prefix) {
					matched++
				}
			}
		}
		if matched != 1 {
			t.Errorf("subject %s matched %d streams, want exactly 1", subject, matched)
		}
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(SubjectEventCreated, EventCreated{UserID: "u1"}); err != nil {
		t.Fatalf("NopPublisher: %v", err)
	}
}
