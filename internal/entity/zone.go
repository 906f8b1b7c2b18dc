package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type LocationType string

const (
	LocationStreet LocationType = "STREET"
	LocationGarage LocationType = "GARAGE"
	LocationLot    LocationType = "LOT"
	LocationMeter  LocationType = "METER"
)

type ParkingZone struct {
	ID               int64            `json:"id" db:"id"`
	ZoneNumber       string           `json:"zone_number" db:"zone_number"`
	Name             string           `json:"name" db:"name"`
	LocationType     LocationType     `json:"location_type" db:"location_type"`
	HourlyRate       decimal.Decimal  `json:"hourly_rate" db:"hourly_rate"`
	MaxDurationHours decimal.Decimal  `json:"max_duration_hours" db:"max_duration_hours"`
	Address          string           `json:"address" db:"address"`
	Restrictions     ZoneRestrictions `json:"restrictions,omitempty" db:"restrictions"`
	IsActive         bool             `json:"is_active" db:"is_active"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// NormalizeZoneNumber returns the canonical upper-case form used for lookups.
func NormalizeZoneNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}
