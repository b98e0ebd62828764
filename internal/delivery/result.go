package delivery

import (
	"encoding/json"
	"time"

	"github.com/target/mmk-jobpipe/internal/domain/model"
)

// Kind tags how a delivery run ended.
type Kind int

const (
	// KindDelivered means the webhook acknowledged the result, possibly in another invocation.
	KindDelivered Kind = iota + 1
	// KindFailed means every attempt failed.
	KindFailed
	// KindSuperseded means another invocation moved the job out from under this one.
	KindSuperseded
)

func (k Kind) String() string {
	switch k {
	case KindDelivered:
		return "delivered"
	case KindFailed:
		return "failed"
	case KindSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Result reports the end state of DeliverWithRetry.
type Result struct {
	Kind Kind
	// DeliveredAt is the recorded delivery time when Kind is KindDelivered.
	DeliveredAt time.Time
	// Attempts is the number of POSTs made by this invocation.
	Attempts int
	// LastError is the message of the final failed attempt when Kind is KindFailed.
	LastError string
}

// Request is one job result to deliver.
type Request struct {
	Job        *model.Job
	Result     json.RawMessage
	DeliveryID string
}
