package assignmentrepo

import (
	"context"

	"merchantdispatch/internal/core/domain/model/dispatch"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAssignmentRepository implements ports.AssignmentRepository using GORM.
type GormAssignmentRepository struct {
	db *gorm.DB
}

// NewGormAssignmentRepository creates a new GORM assignment repository.
func NewGormAssignmentRepository(db *gorm.DB) *GormAssignmentRepository {
	return &GormAssignmentRepository{db: db}
}

// Save inserts the assignment or overwrites the row of its batch. A batch that is
// re-accepted by another driver keeps only the latest driver.
func (r *GormAssignmentRepository) Save(ctx context.Context, a *dispatch.Assignment) error {
	if err := a.Validate(); err != nil {
		return err
	}

	dto := fromDomain(a)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "batch_key"}}, UpdateAll: true}).
		Create(&dto).Error
}
