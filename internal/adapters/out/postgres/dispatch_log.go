package postgres

import (
	"context"
	"fmt"

	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/ports"
)

// GormDispatchLog implements ports.DispatchLog. Each record runs in its own
// transaction.
type GormDispatchLog struct {
	factory ports.UnitOfWorkFactory
}

// NewGormDispatchLog creates a dispatch log writing through factory.
func NewGormDispatchLog(factory ports.UnitOfWorkFactory) *GormDispatchLog {
	return &GormDispatchLog{factory: factory}
}

// RecordBroadcast stores one broadcast attempt.
func (l *GormDispatchLog) RecordBroadcast(ctx context.Context, req *dispatch.Request) error {
	return l.inTx(ctx, "record broadcast", func(uow ports.UnitOfWork) error {
		return uow.RequestRepository().Add(ctx, req)
	})
}

// RecordAcceptance flags the accepted attempt and stores the assignment together.
func (l *GormDispatchLog) RecordAcceptance(ctx context.Context, req *dispatch.Request, a *dispatch.Assignment) error {
	return l.inTx(ctx, "record acceptance", func(uow ports.UnitOfWork) error {
		if err := uow.RequestRepository().MarkAcknowledged(ctx, req); err != nil {
			return err
		}
		return uow.AssignmentRepository().Save(ctx, a)
	})
}

// RecordArrival updates the assignment with its arrival time.
func (l *GormDispatchLog) RecordArrival(ctx context.Context, a *dispatch.Assignment) error {
	return l.inTx(ctx, "record arrival", func(uow ports.UnitOfWork) error {
		return uow.AssignmentRepository().Save(ctx, a)
	})
}

func (l *GormDispatchLog) inTx(ctx context.Context, op string, fn func(uow ports.UnitOfWork) error) error {
	uow := l.factory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = uow.Rollback(ctx)
	}()

	if err := fn(uow); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
