// Package mocks provides gomock implementations of the pipeline ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockJobStore(ctrl)
//	store.EXPECT().GetJob(gomock.Any(), "job-1").Return(job, nil)
package mocks

// JobStore: CreateJob, GetJob, GetJobByDocID, UpdateStatus, RecordDispatch, AssignDeliveryID, MarkDelivered, ListStale
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_store_mock.go github.com/target/mmk-jobpipe/internal/core JobStore

// TaskQueue (Enqueue), DeadLetterAdmin (DeadLetters, RequeueDead) and HealthChecker (Ping)
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=queue_mock.go github.com/target/mmk-jobpipe/internal/core TaskQueue,DeadLetterAdmin,HealthChecker
