package entity

import "time"

type Vehicle struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	LicensePlate string    `json:"license_plate" db:"license_plate"`
	Nickname     string    `json:"nickname,omitempty" db:"nickname"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
