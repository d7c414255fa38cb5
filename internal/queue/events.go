package queue

import (
	"context"
	"time"

	"qms/clinic-queue/internal/models"
)

// Event is published after every successful queue mutation so that display
// boards and other readers can refresh without polling.
type Event struct {
	Type       string              `json:"type"`
	ClinicID   string              `json:"clinic_id"`
	Entry      models.QueueEntry   `json:"queue"`
	Visit      *models.VisitRecord `json:"visit_history,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

func ClinicTopic(clinicID string) string {
	return "clinic:" + clinicID
}
