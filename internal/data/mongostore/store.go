// Package mongostore implements the JobStore on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/data"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
)

// CollectionJobs is the collection holding job documents.
const CollectionJobs = "jobs"

var _ core.JobStore = (*Store)(nil)

// Options configures the Mongo store.
type Options struct {
	Logger       *slog.Logger
	TimeProvider data.TimeProvider
}

// Store is a JobStore backed by a single MongoDB collection.
// The caller owns the client lifecycle.
type Store struct {
	db     *mongo.Database
	col    *mongo.Collection
	logger *slog.Logger
	clock  data.TimeProvider
}

// New returns a Store on db after making sure its indexes exist.
func New(ctx context.Context, db *mongo.Database, opts Options) (*Store, error) {
	if db == nil {
		return nil, errors.New("mongostore: database is required")
	}

	s := &Store{
		db:     db,
		col:    db.Collection(CollectionJobs),
		logger: opts.Logger,
		clock:  opts.TimeProvider,
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "mongo_job_store")
	}
	if s.clock == nil {
		s.clock = &data.RealTimeProvider{}
	}

	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique doc_id index and the lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "doc_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("doc_id_unique"),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
	})
	if err != nil {
		return apperrors.Storage(err, "mongostore: ensure indexes")
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func newID() string {
	return uuid.NewString()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func storageErr(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Storage(err, fmt.Sprintf("%s: %v", op, err))
	}
	return apperrors.Storage(err, op+": database unavailable")
}
