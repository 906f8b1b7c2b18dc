package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
)

type vehicleRepository struct {
	db *sql.DB
}

func NewVehicleRepository(db *sql.DB) VehicleRepository {
	return &vehicleRepository{db: db}
}

func (r *vehicleRepository) GetByIDAndOwner(ctx context.Context, id, userID int64) (*entity.Vehicle, error) {
	query := `
		SELECT id, user_id, license_plate, nickname, created_at
		FROM vehicles
		WHERE id = $1 AND user_id = $2
	`

	var vehicle entity.Vehicle
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&vehicle.ID,
		&vehicle.UserID,
		&vehicle.LicensePlate,
		&vehicle.Nickname,
		&vehicle.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %v", err)
	}
	return &vehicle, nil
}
