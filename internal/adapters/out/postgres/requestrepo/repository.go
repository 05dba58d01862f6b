package requestrepo

import (
	"context"

	"merchantdispatch/internal/core/domain/model/dispatch"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRequestRepository implements ports.DispatchRequestRepository using GORM.
//
// Broadcast and acceptance are recorded from separate goroutines, so either write
// may arrive first. Both are upserts keyed by request id: Add never overwrites an
// existing row and MarkAcknowledged inserts the row if it is still missing.
type GormRequestRepository struct {
	db *gorm.DB
}

// NewGormRequestRepository creates a new GORM dispatch request repository.
func NewGormRequestRepository(db *gorm.DB) *GormRequestRepository {
	return &GormRequestRepository{db: db}
}

// Add stores a broadcast attempt.
func (r *GormRequestRepository) Add(ctx context.Context, req *dispatch.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	dto, err := fromDomain(req)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&dto).Error
}

// MarkAcknowledged flags the attempt a driver accepted.
func (r *GormRequestRepository) MarkAcknowledged(ctx context.Context, req *dispatch.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	dto, err := fromDomain(req)
	if err != nil {
		return err
	}
	dto.Acknowledged = true
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"acknowledged"}),
		}).
		Create(&dto).Error
}
