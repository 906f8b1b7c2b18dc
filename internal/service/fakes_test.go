package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/shopspring/decimal"
)

type fakeZoneRepo struct {
	zones map[int64]*entity.ParkingZone
}

func newFakeZoneRepo(zones ...*entity.ParkingZone) *fakeZoneRepo {
	r := &fakeZoneRepo{zones: map[int64]*entity.ParkingZone{}}
	for _, z := range zones {
		r.zones[z.ID] = z
	}
	return r
}

func (r *fakeZoneRepo) GetByID(_ context.Context, id int64) (*entity.ParkingZone, error) {
	z, ok := r.zones[id]
	if !ok {
		return nil, entity.ErrZoneNotFound
	}
	cp := *z
	return &cp, nil
}

func (r *fakeZoneRepo) GetByNumber(_ context.Context, number string) (*entity.ParkingZone, error) {
	for _, z := range r.zones {
		if z.ZoneNumber == number {
			cp := *z
			return &cp, nil
		}
	}
	return nil, entity.ErrZoneNotFound
}

func (r *fakeZoneRepo) GetAll(_ context.Context, activeOnly bool) ([]*entity.ParkingZone, error) {
	var out []*entity.ParkingZone
	for _, z := range r.zones {
		if activeOnly && !z.IsActive {
			continue
		}
		cp := *z
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneNumber < out[j].ZoneNumber })
	return out, nil
}

type fakeVehicleRepo struct {
	vehicles map[int64]*entity.Vehicle
}

func newFakeVehicleRepo(vehicles ...*entity.Vehicle) *fakeVehicleRepo {
	r := &fakeVehicleRepo{vehicles: map[int64]*entity.Vehicle{}}
	for _, v := range vehicles {
		r.vehicles[v.ID] = v
	}
	return r
}

func (r *fakeVehicleRepo) GetByIDAndOwner(_ context.Context, id, userID int64) (*entity.Vehicle, error) {
	v, ok := r.vehicles[id]
	if !ok || v.UserID != userID {
		return nil, entity.ErrVehicleNotFound
	}
	cp := *v
	return &cp, nil
}

// fakeSessionRepo keeps the conditional-update and one-open-session-per-vehicle
// guarantees of the SQL repository.
type fakeSessionRepo struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*entity.ParkingSession
	updateErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[uuid.UUID]*entity.ParkingSession{}}
}

func (r *fakeSessionRepo) put(s *entity.ParkingSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
}

func (r *fakeSessionRepo) get(id uuid.UUID) *entity.ParkingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.sessions[id]
	return &cp
}

func (r *fakeSessionRepo) Create(_ context.Context, s *entity.ParkingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.VehicleID == s.VehicleID && !existing.Status.IsTerminal() {
			return &entity.ConflictError{Message: "vehicle already has an open session"}
		}
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, entity.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) GetOpenByVehicle(_ context.Context, vehicleID int64) (*entity.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.VehicleID == vehicleID && !s.Status.IsTerminal() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) GetByUserID(_ context.Context, userID int64, limit int) ([]*entity.ParkingSession, error) {
	return r.List(context.Background(), entity.SessionFilter{UserID: userID, Limit: limit})
}

func (r *fakeSessionRepo) List(_ context.Context, f entity.SessionFilter) ([]*entity.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ParkingSession
	for _, s := range r.sessions {
		if f.UserID != 0 && s.UserID != f.UserID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.ZoneID != 0 && s.ZoneID != f.ZoneID {
			continue
		}
		if f.VehicleID != 0 && s.VehicleID != f.VehicleID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *fakeSessionRepo) UpdateIfStatus(_ context.Context, s *entity.ParkingSession, expected ...entity.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.sessions[s.ID]
	if !ok {
		return entity.ErrConcurrentUpdate
	}
	for _, st := range expected {
		if stored.Status == st {
			cp := *s
			r.sessions[s.ID] = &cp
			return nil
		}
	}
	return entity.ErrConcurrentUpdate
}

func (r *fakeSessionRepo) ExpireOverdue(_ context.Context, now time.Time) ([]*entity.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ParkingSession
	for _, s := range r.sessions {
		if (s.Status == entity.SessionStatusActive || s.Status == entity.SessionStatusExtended) && s.ScheduledEndTime.Before(now) {
			s.Status = entity.SessionStatusExpired
			end := now
			s.EndTime = &end
			s.UpdatedAt = now
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) CancelStalePending(_ context.Context, createdBefore, now time.Time) ([]*entity.ParkingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ParkingSession
	for _, s := range r.sessions {
		if s.Status == entity.SessionStatusPending && s.CreatedAt.Before(createdBefore) {
			s.Status = entity.SessionStatusCancelled
			s.UpdatedAt = now
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeTransactionRepo struct {
	mu  sync.Mutex
	txs []*entity.Transaction
}

func (r *fakeTransactionRepo) Create(_ context.Context, tx *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.txs = append(r.txs, &cp)
	return nil
}

func (r *fakeTransactionRepo) GetByExternalRef(_ context.Context, ref string) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.ExternalRef == ref {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, entity.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) GetPendingCharge(_ context.Context, sessionID uuid.UUID) (*entity.Transaction, error) {
	pending := r.filter(sessionID, entity.TransactionKindCharge, entity.TransactionStatusPending)
	if len(pending) == 0 {
		return nil, nil
	}
	return pending[0], nil
}

func (r *fakeTransactionRepo) GetCompletedCharges(_ context.Context, sessionID uuid.UUID) ([]*entity.Transaction, error) {
	return r.filter(sessionID, entity.TransactionKindCharge, entity.TransactionStatusCompleted), nil
}

func (r *fakeTransactionRepo) GetBySessionID(_ context.Context, sessionID uuid.UUID) ([]*entity.Transaction, error) {
	return r.filter(sessionID, "", ""), nil
}

func (r *fakeTransactionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status entity.TransactionStatus, ref, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.ID == id {
			tx.Status = status
			if ref != "" {
				tx.ExternalRef = ref
			}
			tx.FailureReason = reason
			return nil
		}
	}
	return entity.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) filter(sessionID uuid.UUID, kind entity.TransactionKind, status entity.TransactionStatus) []*entity.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Transaction
	for _, tx := range r.txs {
		if tx.SessionID != sessionID {
			continue
		}
		if kind != "" && tx.Kind != kind {
			continue
		}
		if status != "" && tx.Status != status {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	return out
}

type fakeGateway struct {
	mu sync.Mutex

	createErr     error
	offSessionErr error
	refundErr     error

	charges      int
	offSession   []decimal.Decimal
	refunds      []decimal.Decimal
	refundedRefs []string
	event        *entity.PaymentEvent
	parseErr     error
	lastMetadata map[string]string

	issued map[string]*entity.Charge
}

// pay marks a previously created charge as paid by the driver.
func (g *fakeGateway) pay(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued[id].Status = entity.ChargeStatusSucceeded
}

func (g *fakeGateway) issue(charge *entity.Charge) {
	if g.issued == nil {
		g.issued = map[string]*entity.Charge{}
	}
	c := *charge
	g.issued[charge.ID] = &c
}

func (g *fakeGateway) CreateCharge(_ context.Context, amount decimal.Decimal, metadata map[string]string) (*entity.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.charges++
	g.lastMetadata = metadata
	id := fmt.Sprintf("pi_%d", g.charges)
	charge := &entity.Charge{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method", Amount: amount}
	g.issue(charge)
	return charge, nil
}

func (g *fakeGateway) ChargeOffSession(_ context.Context, original string, amount decimal.Decimal, metadata map[string]string) (*entity.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offSessionErr != nil {
		return nil, g.offSessionErr
	}
	g.charges++
	g.lastMetadata = metadata
	g.offSession = append(g.offSession, amount)
	charge := &entity.Charge{ID: fmt.Sprintf("pi_%d", g.charges), Status: entity.ChargeStatusSucceeded, Amount: amount}
	g.issue(charge)
	return charge, nil
}

func (g *fakeGateway) GetCharge(_ context.Context, chargeID string) (*entity.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	charge, ok := g.issued[chargeID]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", chargeID)
	}
	c := *charge
	return &c, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, chargeID string, amount decimal.Decimal) (*entity.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	g.refundedRefs = append(g.refundedRefs, chargeID)
	return &entity.Refund{ID: fmt.Sprintf("re_%d", len(g.refunds)), Status: "succeeded", Amount: amount}, nil
}

func (g *fakeGateway) ParseWebhook(_ []byte, signature string) (*entity.PaymentEvent, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	if signature == "" {
		return nil, errors.New("missing signature")
	}
	return g.event, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []entity.SessionEventType
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event *entity.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.Type)
	return p.err
}

func (p *fakePublisher) types() []entity.SessionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.SessionEventType(nil), p.events...)
}

type fakeEventStore struct {
	mu     sync.Mutex
	seen   map[string]bool
	forgot []string
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{seen: map[string]bool{}}
}

func (s *fakeEventStore) MarkProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[id] {
		return false, nil
	}
	s.seen[id] = true
	return true, nil
}

func (s *fakeEventStore) Forget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, id)
	s.forgot = append(s.forgot, id)
	return nil
}
