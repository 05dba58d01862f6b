package queries

import (
	"context"
	"database/sql"
	"time"

	"merchantdispatch/internal/core/domain/model/kernel"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetDriverAssignmentsQueryHandler reads driver_assignments with raw SQL.
type GetDriverAssignmentsQueryHandler struct {
	db *gorm.DB
}

// NewGetDriverAssignmentsQueryHandler creates a handler over a GORM connection.
func NewGetDriverAssignmentsQueryHandler(db *gorm.DB) GetDriverAssignmentsQueryHandler {
	return GetDriverAssignmentsQueryHandler{db: db}
}

// Handle returns the assignments, most recently accepted first.
func (h GetDriverAssignmentsQueryHandler) Handle(
	ctx context.Context,
	query GetDriverAssignmentsQuery,
) ([]AssignedDriver, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if query.OnlyEnRoute() {
		return selectAssignedDrivers(ctx, h.db, "WHERE arrived_at IS NULL")
	}
	return selectAssignedDrivers(ctx, h.db, "")
}

func selectAssignedDrivers(ctx context.Context, db *gorm.DB, where string, args ...any) ([]AssignedDriver, error) {
	drivers := make([]AssignedDriver, 0)

	rows, err := db.WithContext(ctx).Raw(`
		SELECT
			batch_key,
			driver_id,
			driver_name,
			driver_phone,
			vehicle_plate,
			rating,
			accepted_at,
			arrived_at,
			live_lat,
			live_lng
		FROM driver_assignments
		`+where+`
		ORDER BY accepted_at DESC
	`, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d         AssignedDriver
			key       uuid.UUID
			name      sql.NullString
			phone     sql.NullString
			plate     sql.NullString
			rating    sql.NullFloat64
			arrivedAt sql.NullTime
			lat, lng  sql.NullFloat64
		)
		err = rows.Scan(&key, &d.DriverID, &name, &phone, &plate, &rating, &d.AcceptedAt, &arrivedAt, &lat, &lng)
		if err != nil {
			return nil, err
		}

		d.BatchKey, err = kernel.UUIDFromString(key.String())
		if err != nil {
			return nil, err
		}
		d.Name, d.Phone, d.VehiclePlate, d.Rating = name.String, phone.String, plate.String, rating.Float64
		if arrivedAt.Valid {
			at := arrivedAt.Time.In(time.UTC)
			d.ArrivedAt = &at
		}
		if lat.Valid && lng.Valid {
			if c, cErr := kernel.NewCoordinates(lat.Float64, lng.Float64); cErr == nil {
				d.Live = c
			}
		}
		drivers = append(drivers, d)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return drivers, nil
}
