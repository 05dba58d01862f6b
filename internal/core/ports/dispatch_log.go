package ports

import (
	"context"

	"merchantdispatch/internal/core/domain/model/dispatch"
)

// DispatchRequestRepository persists broadcast attempts.
type DispatchRequestRepository interface {
	// Add stores one attempt, including failed ones.
	Add(ctx context.Context, req *dispatch.Request) error
	// MarkAcknowledged flags the attempt a driver accepted.
	MarkAcknowledged(ctx context.Context, req *dispatch.Request) error
}

// AssignmentRepository persists driver assignments.
type AssignmentRepository interface {
	// Save inserts or updates the assignment for its batch.
	Save(ctx context.Context, a *dispatch.Assignment) error
}

// UnitOfWork is a transaction boundary over the dispatch log tables.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	RequestRepository() DispatchRequestRepository
	AssignmentRepository() AssignmentRepository
}

// UnitOfWorkFactory creates a UnitOfWork per operation.
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// DispatchLog records the dispatch protocol for later inspection. The coordinator
// treats it as best effort: errors are logged, never surfaced.
type DispatchLog interface {
	RecordBroadcast(ctx context.Context, req *dispatch.Request) error
	RecordAcceptance(ctx context.Context, req *dispatch.Request, a *dispatch.Assignment) error
	RecordArrival(ctx context.Context, a *dispatch.Assignment) error
}
