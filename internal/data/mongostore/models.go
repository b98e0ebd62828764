package mongostore

import (
	"encoding/json"
	"time"

	"github.com/target/mmk-jobpipe/internal/domain/model"
)

// jobModel is the stored form of a job. JSON documents are kept as text so
// the bytes handed back to callers match what was submitted.
type jobModel struct {
	ID               string     `bson:"_id"`
	DocID            string     `bson:"doc_id"`
	Payload          string     `bson:"payload"`
	WebhookURL       string     `bson:"webhook_url"`
	Status           string     `bson:"status"`
	CurrentStep      *string    `bson:"current_step,omitempty"`
	Result           *string    `bson:"result,omitempty"`
	ErrorMessage     *string    `bson:"error_message,omitempty"`
	DeliveryID       *string    `bson:"delivery_id,omitempty"`
	DeliveredAt      *time.Time `bson:"delivered_at,omitempty"`
	DeliveryAttempts int        `bson:"delivery_attempts"`
	DispatchTaskID   *string    `bson:"dispatch_task_id,omitempty"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
	CompletedAt      *time.Time `bson:"completed_at,omitempty"`
}

func fromJobModel(m *jobModel) *model.Job {
	j := &model.Job{
		ID:               m.ID,
		DocID:            m.DocID,
		Payload:          json.RawMessage(m.Payload),
		WebhookURL:       m.WebhookURL,
		Status:           model.JobStatus(m.Status),
		ErrorMessage:     m.ErrorMessage,
		DeliveryID:       m.DeliveryID,
		DeliveryAttempts: m.DeliveryAttempts,
		DispatchTaskID:   m.DispatchTaskID,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
		DeliveredAt:      utcPtr(m.DeliveredAt),
		CompletedAt:      utcPtr(m.CompletedAt),
	}
	if m.CurrentStep != nil {
		j.CurrentStep = model.StepPtr(model.JobStep(*m.CurrentStep))
	}
	if m.Result != nil {
		j.Result = json.RawMessage(*m.Result)
	}
	return j
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
