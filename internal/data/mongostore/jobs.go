package mongostore

import (
	"context"
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/target/mmk-jobpipe/internal/data"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
)

// CreateJob implements core.JobStore. The unique doc_id index settles concurrent inserts.
func (s *Store) CreateJob(
	ctx context.Context,
	docID string,
	payload json.RawMessage,
	webhookURL string,
) (*model.Job, bool, error) {
	existing, err := s.findOne(ctx, bson.M{"doc_id": docID})
	if err == nil {
		return existing, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	t := s.now()
	m := &jobModel{
		ID:         newID(),
		DocID:      docID,
		Payload:    string(payload),
		WebhookURL: webhookURL,
		Status:     string(model.JobStatusPending),
		CreatedAt:  t,
		UpdatedAt:  t,
	}

	if _, err := s.col.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, getErr := s.findOne(ctx, bson.M{"doc_id": docID})
			if getErr != nil {
				return nil, false, getErr
			}
			s.logger.InfoContext(ctx, "concurrent create resolved to existing job",
				"job_id", existing.ID, "doc_id", docID)
			return existing, false, nil
		}
		return nil, false, storageErr(err, "create job")
	}

	return fromJobModel(m), true, nil
}

// GetJob implements core.JobStore.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetJobByDocID implements core.JobStore.
func (s *Store) GetJobByDocID(ctx context.Context, docID string) (*model.Job, error) {
	return s.findOne(ctx, bson.M{"doc_id": docID})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*model.Job, error) {
	var m jobModel
	if err := s.col.FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, data.ErrJobNotFound
		}
		return nil, storageErr(err, "get job")
	}
	return fromJobModel(&m), nil
}

// UpdateStatus implements core.JobStore as one pipeline update so that
// delivered_at stays write-once and delivery_attempts increments server-side.
func (s *Store) UpdateStatus(ctx context.Context, id string, u model.StatusUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	t := s.now()
	set := bson.D{
		{Key: "status", Value: literal(string(u.Status))},
		{Key: "updated_at", Value: t},
	}
	if u.Step != nil {
		set = append(set, bson.E{Key: "current_step", Value: literal(string(*u.Step))})
	}
	if u.Result != nil {
		set = append(set, bson.E{Key: "result", Value: literal(string(u.Result))})
	}
	if u.ErrorMessage != nil {
		set = append(set, bson.E{Key: "error_message", Value: literal(*u.ErrorMessage)})
	}
	if u.DeliveryID != nil {
		set = append(set, bson.E{Key: "delivery_id", Value: literal(*u.DeliveryID)})
	}
	if u.DeliveredAt != nil {
		set = append(set, bson.E{Key: "delivered_at", Value: bson.M{
			"$ifNull": bson.A{"$delivered_at", u.DeliveredAt.UTC()},
		}})
	}
	if u.IncrementAttempts {
		set = append(set, bson.E{Key: "delivery_attempts", Value: bson.M{
			"$add": bson.A{"$delivery_attempts", 1},
		}})
	}
	if u.Status == model.JobStatusSucceeded {
		set = append(set, bson.E{Key: "completed_at", Value: t})
	}

	filter := bson.M{"_id": id, "status": bson.M{"$in": data.AllowedFrom(u.Status)}}
	res, err := s.col.UpdateOne(ctx, filter, mongo.Pipeline{{{Key: "$set", Value: set}}})
	if err != nil {
		return storageErr(err, "update job status")
	}
	if res.MatchedCount == 1 {
		return nil
	}

	current, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return data.TransitionConflict(id, current.Status, u.Status)
}

// literal keeps caller-controlled strings from being read as field paths inside a pipeline.
func literal(v string) bson.M {
	return bson.M{"$literal": v}
}

// RecordDispatch implements core.JobStore.
func (s *Store) RecordDispatch(ctx context.Context, id, taskID string) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"dispatch_task_id": taskID, "updated_at": s.now()},
	})
	if err != nil {
		return storageErr(err, "record dispatch")
	}
	if res.MatchedCount == 0 {
		return data.ErrJobNotFound
	}
	return nil
}

// AssignDeliveryID implements core.JobStore.
func (s *Store) AssignDeliveryID(ctx context.Context, id, candidate string) (string, error) {
	var m jobModel
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "delivery_id": nil},
		bson.M{"$set": bson.M{"delivery_id": candidate, "updated_at": s.now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err == nil && m.DeliveryID != nil {
		return *m.DeliveryID, nil
	}
	if err != nil && !isNoDocuments(err) {
		return "", storageErr(err, "assign delivery id")
	}

	job, getErr := s.GetJob(ctx, id)
	if getErr != nil {
		return "", getErr
	}
	if job.DeliveryID == nil {
		return "", storageErr(mongo.ErrNoDocuments, "assign delivery id")
	}
	return *job.DeliveryID, nil
}

// MarkDelivered implements core.JobStore.
func (s *Store) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id, "delivered_at": nil},
		bson.M{"$set": bson.M{"delivered_at": at.UTC(), "updated_at": s.now()}},
	)
	if err != nil {
		return false, storageErr(err, "mark delivered")
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	if _, getErr := s.GetJob(ctx, id); getErr != nil {
		return false, getErr
	}
	return false, nil
}

// ListStale implements core.JobStore.
func (s *Store) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	terminal := make([]string, 0, 2)
	for _, st := range model.TerminalStatuses() {
		terminal = append(terminal, string(st))
	}

	cursor, err := s.col.Find(ctx,
		bson.M{
			"status":     bson.M{"$nin": terminal},
			"updated_at": bson.M{"$lt": before.UTC()},
		},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, storageErr(err, "list stale jobs")
	}
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, storageErr(err, "list stale jobs")
	}

	jobs := make([]*model.Job, 0, len(models))
	for i := range models {
		jobs = append(jobs, fromJobModel(&models[i]))
	}
	return jobs, nil
}
