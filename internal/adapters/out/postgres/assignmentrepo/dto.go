// Package assignmentrepo persists driver assignments, one row per batch.
package assignmentrepo

import (
	"time"

	"merchantdispatch/internal/core/domain/model/dispatch"

	"github.com/google/uuid"
)

// AssignmentDTO is the driver who accepted a batch and what is known about them.
type AssignmentDTO struct {
	BatchKey     uuid.UUID   `gorm:"type:uuid;primaryKey"`
	DriverID     string      `gorm:"type:varchar(64);not null;index"`
	DriverName   string      `gorm:"type:varchar(255)"`
	DriverPhone  string      `gorm:"type:varchar(32)"`
	VehiclePlate string      `gorm:"type:varchar(32)"`
	Rating       float64     `gorm:"type:double precision"`
	AcceptedAt   time.Time   `gorm:"not null"`
	ArrivedAt    *time.Time
	Live         LocationDTO `gorm:"embedded;embeddedPrefix:live_"`
	LocatedAt    *time.Time
}

// TableName overrides GORM's default "assignment_dtos".
func (AssignmentDTO) TableName() string {
	return "driver_assignments"
}

// LocationDTO is the last reported driver position. Both columns are null until
// the first location event.
type LocationDTO struct {
	Lat *float64 `gorm:"type:double precision"`
	Lng *float64 `gorm:"type:double precision"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromDomain(a *dispatch.Assignment) AssignmentDTO {
	p := a.Profile()
	dto := AssignmentDTO{
		BatchKey:     a.BatchKey().Bytes(),
		DriverID:     a.DriverID(),
		DriverName:   p.Name,
		DriverPhone:  p.Phone,
		VehiclePlate: p.VehiclePlate,
		Rating:       p.Rating,
		AcceptedAt:   a.AcceptedAt().UTC(),
		ArrivedAt:    optionalTime(a.ArrivedAt()),
		LocatedAt:    optionalTime(a.LocatedAt()),
	}
	if live := a.Live(); live.IsSet() {
		lat, lng := live.Lat(), live.Lng()
		dto.Live = LocationDTO{Lat: &lat, Lng: &lng}
	}
	return dto
}
