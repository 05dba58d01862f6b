package queries

import (
	"context"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/pkg/errs"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GetDispatchHistoryQueryHandler reads the dispatch log tables with raw SQL.
type GetDispatchHistoryQueryHandler struct {
	db *gorm.DB
}

// NewGetDispatchHistoryQueryHandler creates a handler over a GORM connection.
func NewGetDispatchHistoryQueryHandler(db *gorm.DB) GetDispatchHistoryQueryHandler {
	return GetDispatchHistoryQueryHandler{db: db}
}

// Handle returns the history of one batch. A batch that was never broadcast is
// reported as ObjectNotFound.
func (h GetDispatchHistoryQueryHandler) Handle(
	ctx context.Context,
	query GetDispatchHistoryQuery,
) (GetDispatchHistoryQueryResponse, error) {
	if err := query.Validate(); err != nil {
		return GetDispatchHistoryQueryResponse{}, err
	}

	resp := GetDispatchHistoryQueryResponse{
		BatchKey: query.BatchKey(),
		Attempts: make([]DispatchAttempt, 0),
	}

	rows, err := h.db.WithContext(ctx).Raw(`
		SELECT
			id,
			batch_id,
			retry_count,
			sent_at,
			acknowledged,
			superseded,
			failure,
			drop_count,
			fare,
			currency
		FROM dispatch_requests
		WHERE batch_key = ?
		ORDER BY sent_at, retry_count
	`, query.BatchKey().Bytes()).Rows()
	if err != nil {
		return GetDispatchHistoryQueryResponse{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			attempt DispatchAttempt
			id      uuid.UUID
			fare    decimal.Decimal
		)
		err = rows.Scan(
			&id,
			&attempt.BatchID,
			&attempt.RetryCount,
			&attempt.SentAt,
			&attempt.Acknowledged,
			&attempt.Superseded,
			&attempt.Failure,
			&attempt.DropCount,
			&fare,
			&attempt.Currency,
		)
		if err != nil {
			return GetDispatchHistoryQueryResponse{}, err
		}

		attempt.RequestID, err = kernel.UUIDFromString(id.String())
		if err != nil {
			return GetDispatchHistoryQueryResponse{}, err
		}
		attempt.Fare = fare
		resp.Attempts = append(resp.Attempts, attempt)
	}
	if err = rows.Err(); err != nil {
		return GetDispatchHistoryQueryResponse{}, err
	}

	if len(resp.Attempts) == 0 {
		return GetDispatchHistoryQueryResponse{}, errs.NewObjectNotFoundError("dispatch history", query.BatchKey().String())
	}

	drivers, err := selectAssignedDrivers(ctx, h.db, "WHERE batch_key = ?", query.BatchKey().Bytes())
	if err != nil {
		return GetDispatchHistoryQueryResponse{}, err
	}
	if len(drivers) > 0 {
		resp.Driver = &drivers[0]
	}
	return resp, nil
}
