package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	repository "github.com/schatha/stamford-parking-system-sub001/internal/database/postgres"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/schatha/stamford-parking-system-sub001/internal/pkg/pricing"
	"github.com/schatha/stamford-parking-system-sub001/internal/pkg/restriction"
	"github.com/shopspring/decimal"
)

type zoneService struct {
	zoneRepo   repository.ZoneRepository
	calculator *pricing.Calculator
	evaluator  *restriction.Evaluator
}

func NewZoneService(
	zoneRepo repository.ZoneRepository,
	calculator *pricing.Calculator,
	evaluator *restriction.Evaluator,
) ZoneService {
	return &zoneService{
		zoneRepo:   zoneRepo,
		calculator: calculator,
		evaluator:  evaluator,
	}
}

func (s *zoneService) GetZone(ctx context.Context, zoneNumber string) (*entity.ParkingZone, error) {
	return findZone(ctx, s.zoneRepo, zoneNumber)
}

func (s *zoneService) ListZones(ctx context.Context) ([]*entity.ParkingZone, error) {
	zones, err := s.zoneRepo.GetAll(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	if zones == nil {
		zones = []*entity.ParkingZone{}
	}
	return zones, nil
}

func (s *zoneService) CheckRestrictions(ctx context.Context, zoneNumber string, start time.Time, durationHours decimal.Decimal) (*entity.RestrictionCheck, error) {
	if err := validateHours("duration_hours", durationHours); err != nil {
		return nil, err
	}
	zone, err := findZone(ctx, s.zoneRepo, zoneNumber)
	if err != nil {
		return nil, err
	}

	check := s.evaluator.Check(zone.Restrictions, start, entity.HoursToDuration(durationHours))
	return &check, nil
}

func (s *zoneService) EstimateCost(ctx context.Context, zoneNumber string, durationHours decimal.Decimal) (*CostEstimate, error) {
	if err := validateHours("duration_hours", durationHours); err != nil {
		return nil, err
	}
	zone, err := findZone(ctx, s.zoneRepo, zoneNumber)
	if err != nil {
		return nil, err
	}
	if durationHours.GreaterThan(zone.MaxDurationHours) {
		return nil, &entity.LimitExceededError{MaxHours: zone.MaxDurationHours, Remaining: zone.MaxDurationHours}
	}

	rate := s.calculator.RateForZone(zone)
	cost, err := s.calculator.Calculate(rate, durationHours)
	if err != nil {
		return nil, err
	}

	return &CostEstimate{
		ZoneNumber:    zone.ZoneNumber,
		HourlyRate:    rate,
		DurationHours: durationHours,
		Cost:          cost,
	}, nil
}

func (s *zoneService) NextAvailableTime(ctx context.Context, zoneNumber string, from time.Time) (time.Time, error) {
	zone, err := findZone(ctx, s.zoneRepo, zoneNumber)
	if err != nil {
		return time.Time{}, err
	}

	next, ok := s.evaluator.NextAvailable(zone.Restrictions, from)
	if !ok {
		return time.Time{}, entity.ErrNoAvailability
	}
	return next, nil
}

// findZone looks a zone up by number and translates a miss into a
// NotFoundError.
func findZone(ctx context.Context, zoneRepo repository.ZoneRepository, zoneNumber string) (*entity.ParkingZone, error) {
	number := entity.NormalizeZoneNumber(zoneNumber)
	if number == "" {
		return nil, &entity.ValidationError{Field: "zone_number", Message: "is required"}
	}

	zone, err := zoneRepo.GetByNumber(ctx, number)
	if errors.Is(err, entity.ErrZoneNotFound) {
		return nil, &entity.NotFoundError{Resource: "zone", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("get zone %s: %w", number, err)
	}
	return zone, nil
}

func validateHours(field string, hours decimal.Decimal) error {
	if !hours.IsPositive() {
		return &entity.ValidationError{Field: field, Message: "must be greater than zero"}
	}
	// Durations are stored to the hundredth of an hour.
	if !hours.Equal(hours.Truncate(2)) {
		return &entity.ValidationError{Field: field, Message: "must have at most two decimal places"}
	}
	return nil
}
