// Package requestrepo persists dispatch broadcast attempts. Every POST to
// dispatch-broadcast, including failed ones and resends, becomes one row.
package requestrepo

import (
	"time"

	"merchantdispatch/internal/core/domain/model/dispatch"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestDTO is one broadcast attempt. Payload keeps the exact body that was posted.
type RequestDTO struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BatchKey     uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchID      string          `gorm:"type:varchar(64)"`
	RetryCount   int             `gorm:"type:int;not null"`
	SentAt       time.Time       `gorm:"not null;index"`
	Acknowledged bool            `gorm:"not null;default:false"`
	Superseded   bool            `gorm:"not null;default:false"`
	Failure      string          `gorm:"type:text"`
	DropCount    int             `gorm:"type:int;not null"`
	Fare         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency     string          `gorm:"type:varchar(8)"`
	Payload      []byte          `gorm:"type:jsonb;not null"`
}

// TableName overrides GORM's default "request_dtos".
func (RequestDTO) TableName() string {
	return "dispatch_requests"
}

func fromDomain(req *dispatch.Request) (RequestDTO, error) {
	payload := req.Payload()
	raw, err := json.Marshal(payload)
	if err != nil {
		return RequestDTO{}, err
	}

	return RequestDTO{
		ID:           req.ID().Bytes(),
		BatchKey:     req.BatchKey().Bytes(),
		BatchID:      payload.BatchID,
		RetryCount:   req.RetryCount(),
		SentAt:       req.SentAt().UTC(),
		Acknowledged: req.Acknowledged(),
		Superseded:   req.Superseded(),
		Failure:      req.Failure(),
		DropCount:    len(payload.Drops),
		Fare:         payload.Fare,
		Currency:     payload.Currency,
		Payload:      raw,
	}, nil
}
