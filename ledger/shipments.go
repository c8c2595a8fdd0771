package ledger

import (
	"fmt"
	"slices"
	"strings"
)

const (
	shipmentCountKey  = "shipment_count"
	shipmentKeyPrefix = "shipment_"
	transitKeyPrefix  = "transit_"
)

func shipmentKey(id uint64) string {
	return fmt.Sprintf("%s%d", shipmentKeyPrefix, id)
}

func transitKey(shipmentID, index uint64) string {
	return fmt.Sprintf("%s%d_%d", transitKeyPrefix, shipmentID, index)
}

// ShipmentLedger owns shipments and their transit-point logs.
type ShipmentLedger struct {
	r      Reader
	tx     Tx
	hashes *HashRegistry
}

func NewShipmentLedger(r Reader, tx Tx, hashes *HashRegistry) *ShipmentLedger {
	return &ShipmentLedger{r: r, tx: tx, hashes: hashes}
}

func (l *ShipmentLedger) Count() (uint64, error) {
	return readCounter(l.r, shipmentCountKey)
}

// Get returns a shipment that exists and is active.
func (l *ShipmentLedger) Get(id uint64) (*Shipment, error) {
	count, err := l.Count()
	if err != nil {
		return nil, err
	}
	if id == 0 || id > count {
		return nil, fmt.Errorf("%w: %d", ErrShipmentNotFound, id)
	}
	var s Shipment
	found, err := getJSON(l.r, shipmentKey(id), &s)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", ErrShipmentNotFound, id)
	}
	if !s.Active {
		return nil, fmt.Errorf("%w: %d", ErrShipmentNotActive, id)
	}
	return &s, nil
}

// Create stores a pending shipment. maxBatch bounds the product list and
// checkProduct validates each contained product id.
func (l *ShipmentLedger) Create(call Call, in CreateShipmentInput, maxBatch int, checkProduct func(id uint64) error) (*Shipment, error) {
	if len(in.ProductIDs) == 0 {
		return nil, fmt.Errorf("%w: shipment has no products", ErrInvalidParameter)
	}
	if len(in.ProductIDs) > maxBatch {
		return nil, fmt.Errorf("%w: %d products, limit %d", ErrMaxBatchSizeExceeded, len(in.ProductIDs), maxBatch)
	}
	receiver := strings.TrimSpace(in.Receiver)
	if receiver == "" {
		return nil, ErrTransferToZeroAddress
	}
	if err := in.Origin.Validate(); err != nil {
		return nil, err
	}
	if err := in.Destination.Validate(); err != nil {
		return nil, err
	}
	for _, pid := range in.ProductIDs {
		if err := checkProduct(pid); err != nil {
			return nil, err
		}
	}

	id, err := nextSequence(l.tx, shipmentCountKey)
	if err != nil {
		return nil, err
	}
	hash, err := shipmentHash(id, in.ProductIDs, call.Caller, receiver, call.Now)
	if err != nil {
		return nil, err
	}
	if err := l.hashes.Commit(hash); err != nil {
		return nil, err
	}

	now := call.Now.UTC()
	s := &Shipment{
		ID:          id,
		ProductIDs:  slices.Clone(in.ProductIDs),
		Sender:      call.Caller,
		Receiver:    receiver,
		Status:      ShipmentStatusPending,
		CreatedAt:   now,
		Origin:      in.Origin.recordedAt(now),
		Destination: in.Destination.recordedAt(now),
		ContentHash: hash,
		Active:      true,
	}
	return s, l.put(s)
}

// UpdateStatus sets the status and appends loc to the transit log. Every
// call appends exactly one transit point, including repeated statuses.
// It returns the stored point and its index.
func (l *ShipmentLedger) UpdateStatus(call Call, id uint64, status ShipmentStatus, arg Args[Location]) (*Shipment, Location, uint64, error) {
	s, err := l.Get(id)
	if err != nil {
		return nil, Location{}, 0, err
	}
	if call.Caller != s.Sender && call.Caller != s.Receiver {
		return nil, Location{}, 0, fmt.Errorf("%w: %s is not a party to shipment %d", ErrUnauthorized, call.Caller, id)
	}
	status, err = ParseShipmentStatus(string(status))
	if err != nil {
		return nil, Location{}, 0, err
	}
	loc, err := arg.Resolve()
	if err != nil {
		return nil, Location{}, 0, err
	}
	if err := loc.Validate(); err != nil {
		return nil, Location{}, 0, err
	}

	now := call.Now.UTC()
	s.Status = status
	if status == ShipmentStatusDelivered {
		s.DeliveredAt = &now
	}
	index := s.TransitPointCount
	point := loc.recordedAt(now)
	if err := putJSON(l.tx, transitKey(id, index), point); err != nil {
		return nil, Location{}, 0, err
	}
	s.TransitPointCount++
	return s, point, index, l.put(s)
}

// TransitPoints returns the complete transit log in index order.
func (l *ShipmentLedger) TransitPoints(id uint64) ([]Location, error) {
	s, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	points := make([]Location, 0, s.TransitPointCount)
	for i := uint64(0); i < s.TransitPointCount; i++ {
		var loc Location
		found, err := getJSON(l.r, transitKey(id, i), &loc)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("transit point %d of shipment %d missing", i, id)
		}
		points = append(points, loc)
	}
	return points, nil
}

func (l *ShipmentLedger) put(s *Shipment) error {
	return putJSON(l.tx, shipmentKey(s.ID), s)
}
