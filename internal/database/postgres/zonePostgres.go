package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
)

type zoneRepository struct {
	db *sql.DB
}

func NewZoneRepository(db *sql.DB) ZoneRepository {
	return &zoneRepository{db: db}
}

const zoneColumns = `
	id, zone_number, name, location_type, hourly_rate, max_duration_hours,
	address, restrictions, is_active, created_at, updated_at`

func scanZone(row interface{ Scan(...interface{}) error }) (*entity.ParkingZone, error) {
	var zone entity.ParkingZone
	err := row.Scan(
		&zone.ID,
		&zone.ZoneNumber,
		&zone.Name,
		&zone.LocationType,
		&zone.HourlyRate,
		&zone.MaxDurationHours,
		&zone.Address,
		&zone.Restrictions,
		&zone.IsActive,
		&zone.CreatedAt,
		&zone.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

// GetByID retrieves a zone by its ID
func (r *zoneRepository) GetByID(ctx context.Context, id int64) (*entity.ParkingZone, error) {
	query := `SELECT ` + zoneColumns + ` FROM parking_zones WHERE id = $1`

	zone, err := scanZone(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrZoneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get zone: %v", err)
	}
	return zone, nil
}

// GetByNumber retrieves a zone by its case-insensitive zone number
func (r *zoneRepository) GetByNumber(ctx context.Context, zoneNumber string) (*entity.ParkingZone, error) {
	query := `SELECT ` + zoneColumns + ` FROM parking_zones WHERE zone_number = $1`

	zone, err := scanZone(r.db.QueryRowContext(ctx, query, entity.NormalizeZoneNumber(zoneNumber)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrZoneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get zone by number: %v", err)
	}
	return zone, nil
}

func (r *zoneRepository) GetAll(ctx context.Context, activeOnly bool) ([]*entity.ParkingZone, error) {
	query := `SELECT ` + zoneColumns + ` FROM parking_zones WHERE ($1 = FALSE OR is_active) ORDER BY zone_number`

	rows, err := r.db.QueryContext(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to get zones: %v", err)
	}
	defer rows.Close()

	var zones []*entity.ParkingZone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan zone: %v", err)
		}
		zones = append(zones, zone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating zones: %v", err)
	}
	return zones, nil
}
