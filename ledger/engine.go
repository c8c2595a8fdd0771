package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const pausedKey = "paused"

// Recorder observes the outcome of every mutating operation.
type Recorder interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
}

// Engine is the single entry point for supply chain operations. It applies
// the pause breaker, role checks and policy bounds, then delegates to the
// ledgers bound to one store transaction.
type Engine struct {
	store    Store
	policy   Policy
	logger   *slog.Logger
	recorder Recorder
}

type Option func(*Engine)

func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		policy: DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// session bundles the components bound to one transaction.
type session struct {
	call      Call
	tx        Tx
	access    *AccessControl
	products  *ProductLedger
	shipments *ShipmentLedger
	quality   *QualityLedger
	events    *EventLog
}

func newSession(tx Tx, call Call) *session {
	hashes := NewHashRegistry(tx, tx)
	batches := NewBatchRegistry(tx, tx)
	return &session{
		call:      call,
		tx:        tx,
		access:    NewAccessControl(tx, tx),
		products:  NewProductLedger(tx, tx, hashes, batches),
		shipments: NewShipmentLedger(tx, tx, hashes),
		quality:   NewQualityLedger(tx, tx),
		events:    NewEventLog(tx),
	}
}

func (s *session) emit(name string, payload any) error {
	_, err := s.events.Append(name, s.call.Now, payload)
	return err
}

func (s *session) requireRunning() error {
	paused, err := isPaused(s.tx)
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}
	return nil
}

func isPaused(r Reader) (bool, error) {
	data, err := r.GetState(pausedKey)
	if err != nil {
		return false, fmt.Errorf("failed to read pause flag: %w", err)
	}
	return string(data) == "true", nil
}

type mutationKey struct{}

func (e *Engine) mutate(ctx context.Context, op string, call Call, fn func(ctx context.Context, s *session) error) error {
	if outer, ok := ctx.Value(mutationKey{}).(string); ok {
		return fmt.Errorf("%w: %s inside %s", ErrReentrantCall, op, outer)
	}
	ctx = context.WithValue(ctx, mutationKey{}, op)
	start := time.Now()
	err := e.store.Update(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, newSession(tx, call))
	})
	e.observe(op, call, err, time.Since(start))
	return err
}

func (e *Engine) observe(op string, call Call, err error, elapsed time.Duration) {
	kind := Kind(err)
	switch kind {
	case "OK":
		e.logger.Debug("operation committed", "op", op, "caller", call.Caller)
	case "Internal":
		e.logger.Error("operation failed", "op", op, "caller", call.Caller, "error", err)
	default:
		e.logger.Info("operation rejected", "op", op, "caller", call.Caller, "kind", kind, "error", err)
	}
	if e.recorder != nil {
		e.recorder.ObserveOperation(op, kind, elapsed)
	}
}

func (e *Engine) view(ctx context.Context, fn func(r Reader) error) error {
	return e.store.View(ctx, func(_ context.Context, r Reader) error {
		return fn(r)
	})
}

// Initialize seeds the caller as root admin. It succeeds once per ledger.
func (e *Engine) Initialize(ctx context.Context, call Call) error {
	return e.mutate(ctx, "Initialize", call, func(_ context.Context, s *session) error {
		if err := s.access.Seed(call.Caller, call.Now); err != nil {
			return err
		}
		return s.emit(EventRoleGranted, RolePayload{Identity: call.Caller, Role: RoleAdmin, By: "SYSTEM"})
	})
}

func (e *Engine) GrantRole(ctx context.Context, call Call, identity string, role Role) error {
	return e.mutate(ctx, "GrantRole", call, func(_ context.Context, s *session) error {
		if err := s.access.RequireRole(call.Caller, RoleAdmin); err != nil {
			return err
		}
		role, err := ParseRole(string(role))
		if err != nil {
			return err
		}
		if err := s.access.Grant(call.Caller, identity, role, call.Now); err != nil {
			return err
		}
		return s.emit(EventRoleGranted, RolePayload{Identity: identity, Role: role, By: call.Caller})
	})
}

func (e *Engine) RevokeRole(ctx context.Context, call Call, identity string, role Role) error {
	return e.mutate(ctx, "RevokeRole", call, func(_ context.Context, s *session) error {
		if err := s.access.RequireRole(call.Caller, RoleAdmin); err != nil {
			return err
		}
		role, err := ParseRole(string(role))
		if err != nil {
			return err
		}
		if err := s.access.Revoke(call.Caller, identity, role, call.Now); err != nil {
			return err
		}
		return s.emit(EventRoleRevoked, RolePayload{Identity: identity, Role: role, By: call.Caller})
	})
}

func (e *Engine) Pause(ctx context.Context, call Call) error {
	return e.mutate(ctx, "Pause", call, func(_ context.Context, s *session) error {
		if err := s.access.RequireRole(call.Caller, RoleAdmin); err != nil {
			return err
		}
		if err := s.requireRunning(); err != nil {
			return err
		}
		if err := s.tx.PutState(pausedKey, []byte("true")); err != nil {
			return fmt.Errorf("failed to write pause flag: %w", err)
		}
		return s.emit(EventPaused, PausePayload{By: call.Caller})
	})
}

func (e *Engine) Unpause(ctx context.Context, call Call) error {
	return e.mutate(ctx, "Unpause", call, func(_ context.Context, s *session) error {
		if err := s.access.RequireRole(call.Caller, RoleAdmin); err != nil {
			return err
		}
		paused, err := isPaused(s.tx)
		if err != nil {
			return err
		}
		if !paused {
			return ErrNotPaused
		}
		if err := s.tx.PutState(pausedKey, []byte("false")); err != nil {
			return fmt.Errorf("failed to write pause flag: %w", err)
		}
		return s.emit(EventUnpaused, PausePayload{By: call.Caller})
	})
}

func (e *Engine) CreateProduct(ctx context.Context, call Call, args Args[CreateProductInput]) (*Product, error) {
	var created *Product
	err := e.mutate(ctx, "CreateProduct", call, func(_ context.Context, s *session) error {
		if err := s.requireRunning(); err != nil {
			return err
		}
		if err := s.access.RequireRole(call.Caller, RoleManufacturer); err != nil {
			return err
		}
		in, err := args.Resolve()
		if err != nil {
			return err
		}
		if in.Price.LessThan(e.policy.MinPrice) || in.Price.GreaterThan(e.policy.MaxPrice) {
			return fmt.Errorf("%w: %s outside [%s, %s]", ErrInvalidPrice, in.Price, e.policy.MinPrice, e.policy.MaxPrice)
		}
		p, err := s.products.Create(call, in)
		if err != nil {
			return err
		}
		if err := s.emit(EventProductCreated, ProductCreatedPayload{
			ProductID:   p.ID,
			Owner:       p.Owner,
			Name:        p.Name,
			BatchNumber: p.BatchNumber,
			ContentHash: p.ContentHash,
		}); err != nil {
			return err
		}
		if err := s.emit(EventLocationUpdated, LocationUpdatedPayload{ProductID: p.ID, Location: p.Location}); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateProductStatus lets the owner move a product through its lifecycle.
func (e *Engine) UpdateProductStatus(ctx context.Context, call Call, id uint64, status ProductStatus, loc Args[Location]) (*Product, error) {
	var updated *Product
	err := e.mutate(ctx, "UpdateProductStatus", call, func(_ context.Context, s *session) error {
		if err := s.requireRunning(); err != nil {
			return err
		}
		p, err := s.products.UpdateStatus(call, id, status, loc)
		if err != nil {
			return err
		}
		updated = p
		return s.emit(EventProductStatusUpdated, ProductStatusPayload{ProductID: id, Status: p.Status, Location: p.Location, By: call.Caller})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecallProduct marks a product recalled. The product stays active and
// queryable.
func (e *Engine) RecallProduct(ctx context.Context, call Call, id uint64, reason string) (*Product, error) {
	var recalled *Product
	err := e.mutate(ctx, "RecallProduct", call, func(_ context.Context, s *session) error {
		if err := s.requireRunning(); err != nil {
			return err
		}
		if _, err := s.products.Get(id); err != nil {
			return err
		}
		if err := s.access.RequireRole(call.Caller, RoleAdmin, RoleManufacturer); err != nil {
			return err
		}
		p, err := s.products.Recall(call, id, reason)
		if err != nil {
			return err
		}
		recalled = p
		return s.emit(EventProductRecalled, ProductRecalledPayload{ProductID: id, Reason: reason, By: call.Caller})
	})
	if err != nil {
		return nil, err
	}
	return recalled, nil
}

func (e *Engine) AddCertification(ctx context.Context, call Call, id uint64, label string) (*Product, error) {
	var certified *Product
	err := e.mutate(ctx, "AddCertification", call, func(_ context.Context, s *session) error {
		if err := s.requireRunning(); err != nil {
			return err
		}
		if _, err := s.products.Get(id); err != nil {
			return err
		}
		if err := s.access.RequireRole(call.Caller, RoleAdmin); err != nil {
			return err
		}
		p, err := s.products.AddCertification(call, id, label)
		if err != nil {
			return err
		}
		certified = p
		return s.emit(EventCertificationAdded, CertificationPayload{ProductID: id, Certification: label, By: call.Caller})
	})
	if err != nil {
		return nil, err
	}
	return certified, nil
}

func (e *Engine) CreateShipment(ctx context.Context, call Call, args Args[CreateShipmentInput]) (*Shipment, error) {
	var created *Shipment
	err := e.mutate(ctx, "CreateShipment", call, func(_ context.Context, s *session) error {
		if err := s.requireRunning(); err != nil {
			return err
		}
		if err := s.access.RequireRole(call.Caller, RoleDistributor, RoleManufacturer); err != nil {
			return err
		}
		in, err := args.Resolve()
		if err != nil {
			return err
		}
		checkProduct := func(id uint64) error {
			_, err := s.products.Get(id)
			return err
		}
		sh, err := s.shipments.Create(call, in, e.policy.MaxBatchSize, checkProduct)
		if err != nil {
			return err
		}
		created = sh
		return s.emit(EventShipmentCreated, ShipmentCreatedPayload{
			ShipmentID:  sh.ID,
			ProductIDs:  sh.ProductIDs,
			Sender:      sh.Sender,
			Receiver:    sh.Receiver,
			ContentHash: sh.ContentHash,
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateShipmentStatus is restricted to the shipment's sender and receiver.
// Each successful call appends one transit point.
func (e *Engine) UpdateShipmentStatus(ctx context.Context, call Call, id uint64, status ShipmentStatus, loc Args[Location]) (*Shipment, error) {
	var updated *Shipment
	err := e.mutate(ctx, "UpdateShipmentStatus", call, func(_ context.Context, s *session) error {
		if err := s.requireRunning(); err != nil {
			return err
		}
		sh, point, index, err := s.shipments.UpdateStatus(call, id, status, loc)
		if err != nil {
			return err
		}
		updated = sh
		return s.emit(EventShipmentStatusUpdated, ShipmentStatusPayload{
			ShipmentID:   id,
			Status:       sh.Status,
			TransitIndex: index,
			Location:     point,
			By:           call.Caller,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *Engine) PerformQualityCheck(ctx context.Context, call Call, args QualityCheckArgs) (*QualityCheck, error) {
	var recorded *QualityCheck
	err := e.mutate(ctx, "PerformQualityCheck", call, func(_ context.Context, s *session) error {
		if err := s.requireRunning(); err != nil {
			return err
		}
		if _, err := s.products.Get(args.Product()); err != nil {
			return err
		}
		if err := s.access.RequireRole(call.Caller, RoleQualityInspector); err != nil {
			return err
		}
		in, err := args.Resolve()
		if err != nil {
			return err
		}
		in.ProductID = args.Product()
		check, err := s.quality.Record(call, in)
		if err != nil {
			return err
		}
		if _, err := s.products.RecordQuality(call, in.ProductID, check.Status); err != nil {
			return err
		}
		recorded = check
		return s.emit(EventQualityCheckPerformed, QualityCheckPayload{
			ProductID:   in.ProductID,
			Index:       check.Index,
			Inspector:   call.Caller,
			Status:      check.Status,
			ContentHash: check.ContentHash,
		})
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

func (e *Engine) HasRole(ctx context.Context, identity string, role Role) (bool, error) {
	var ok bool
	err := e.view(ctx, func(r Reader) error {
		var err error
		ok, err = NewAccessControl(r, nil).HasRole(identity, role)
		return err
	})
	return ok, err
}

func (e *Engine) RolesOf(ctx context.Context, identity string) ([]Role, error) {
	var roles []Role
	err := e.view(ctx, func(r Reader) error {
		var err error
		roles, err = NewAccessControl(r, nil).RolesOf(identity)
		return err
	})
	return roles, err
}

func (e *Engine) IsPaused(ctx context.Context) (bool, error) {
	var paused bool
	err := e.view(ctx, func(r Reader) error {
		var err error
		paused, err = isPaused(r)
		return err
	})
	return paused, err
}

func (e *Engine) GetProduct(ctx context.Context, id uint64) (*Product, error) {
	var p *Product
	err := e.view(ctx, func(r Reader) error {
		var err error
		p, err = NewProductLedger(r, nil, nil, nil).Get(id)
		return err
	})
	return p, err
}

func (e *Engine) GetOwnedProducts(ctx context.Context, identity string) ([]uint64, error) {
	var ids []uint64
	err := e.view(ctx, func(r Reader) error {
		var err error
		ids, err = NewProductLedger(r, nil, nil, nil).OwnedBy(identity)
		return err
	})
	return ids, err
}

func (e *Engine) ProductCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.view(ctx, func(r Reader) error {
		var err error
		n, err = NewProductLedger(r, nil, nil, nil).Count()
		return err
	})
	return n, err
}

func (e *Engine) GetShipment(ctx context.Context, id uint64) (*Shipment, error) {
	var sh *Shipment
	err := e.view(ctx, func(r Reader) error {
		var err error
		sh, err = NewShipmentLedger(r, nil, nil).Get(id)
		return err
	})
	return sh, err
}

func (e *Engine) GetShipmentTransitPoints(ctx context.Context, id uint64) ([]Location, error) {
	var points []Location
	err := e.view(ctx, func(r Reader) error {
		var err error
		points, err = NewShipmentLedger(r, nil, nil).TransitPoints(id)
		return err
	})
	return points, err
}

func (e *Engine) ShipmentCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := e.view(ctx, func(r Reader) error {
		var err error
		n, err = NewShipmentLedger(r, nil, nil).Count()
		return err
	})
	return n, err
}

func (e *Engine) GetQualityChecks(ctx context.Context, productID uint64) ([]QualityCheck, error) {
	var checks []QualityCheck
	err := e.view(ctx, func(r Reader) error {
		if _, err := NewProductLedger(r, nil, nil, nil).Get(productID); err != nil {
			return err
		}
		var err error
		checks, err = NewQualityLedger(r, nil).List(productID)
		return err
	})
	return checks, err
}

func (e *Engine) IsHashUsed(ctx context.Context, hash string) (bool, error) {
	var used bool
	err := e.view(ctx, func(r Reader) error {
		var err error
		used, err = NewHashRegistry(r, nil).IsUsed(hash)
		return err
	})
	return used, err
}

func (e *Engine) IsBatchNumberUsed(ctx context.Context, batch string) (bool, error) {
	var used bool
	err := e.view(ctx, func(r Reader) error {
		var err error
		used, err = NewBatchRegistry(r, nil).IsUsed(batch)
		return err
	})
	return used, err
}

// Events returns the events the transaction txID emitted, in emission order.
// An unknown txID yields an empty list.
func (e *Engine) Events(ctx context.Context, txID string) ([]Event, error) {
	var events []Event
	err := e.view(ctx, func(r Reader) error {
		var err error
		events, err = readEvents(r, txID)
		return err
	})
	return events, err
}
