package queries

import (
	"errors"
	"time"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/pkg/guard"

	"github.com/shopspring/decimal"
)

var ErrGetDispatchHistoryQueryIsNotConstructed = errors.New(
	"GetDispatchHistoryQuery must be created via NewGetDispatchHistoryQuery constructor",
)

// GetDispatchHistoryQuery reads every broadcast attempt of one batch and the
// driver that accepted it, if any.
//
// Example:
//
//	query, err := NewGetDispatchHistoryQuery(batchKey)
//	if err != nil {
//	    return err
//	}
//	history, err := handler.Handle(ctx, query)
type GetDispatchHistoryQuery struct {
	batchKey kernel.UUID
	guard    guard.ConstructorGuard
}

// NewGetDispatchHistoryQuery creates a history query for a batch key.
func NewGetDispatchHistoryQuery(batchKey kernel.UUID) (GetDispatchHistoryQuery, error) {
	if err := batchKey.Validate(); err != nil {
		return GetDispatchHistoryQuery{}, err
	}
	return GetDispatchHistoryQuery{batchKey: batchKey, guard: guard.NewConstructorGuard()}, nil
}

// BatchKey is the local batch identity the history is read for.
func (q GetDispatchHistoryQuery) BatchKey() kernel.UUID { return q.batchKey }

// Validate ensures the query was created through the constructor.
func (q GetDispatchHistoryQuery) Validate() error {
	return q.guard.Validate(ErrGetDispatchHistoryQueryIsNotConstructed)
}

// DispatchAttempt is one POST to dispatch-broadcast.
type DispatchAttempt struct {
	RequestID    kernel.UUID
	BatchID      string
	RetryCount   int
	SentAt       time.Time
	Acknowledged bool
	Superseded   bool
	Failure      string
	DropCount    int
	Fare         decimal.Decimal
	Currency     string
}

// GetDispatchHistoryQueryResponse lists the attempts oldest first. Driver is nil
// while no driver accepted the batch.
type GetDispatchHistoryQueryResponse struct {
	BatchKey kernel.UUID
	Attempts []DispatchAttempt
	Driver   *AssignedDriver
}
