package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventRoleGranted           = "RoleGranted"
	EventRoleRevoked           = "RoleRevoked"
	EventPaused                = "Paused"
	EventUnpaused              = "Unpaused"
	EventProductCreated        = "ProductCreated"
	EventLocationUpdated       = "LocationUpdated"
	EventProductStatusUpdated  = "ProductStatusUpdated"
	EventProductRecalled       = "ProductRecalled"
	EventCertificationAdded    = "CertificationAdded"
	EventShipmentCreated       = "ShipmentCreated"
	EventShipmentStatusUpdated = "ShipmentStatusUpdated"
	EventQualityCheckPerformed = "QualityCheckPerformed"
)

// eventNamespace seeds name-based event ids so every endorsing peer derives
// the same id for the same event.
var eventNamespace = uuid.MustParse("6f1c2d0e-9a57-4b7e-8a43-3c1f5e2b9d10")

// Event is one entry of the event log. TxID and Index locate it in state;
// Seq is an in-process commit sequence assigned by MemoryStore and is zero
// for events read back from a peer.
type Event struct {
	ID      string          `json:"id"`
	TxID    string          `json:"txId"`
	Index   int             `json:"index"`
	Seq     uint64          `json:"seq,omitempty"`
	Name    string          `json:"name"`
	TxTime  time.Time       `json:"txTime"`
	Payload json.RawMessage `json:"payload"`
}

type RolePayload struct {
	Identity string `json:"identity"`
	Role     Role   `json:"role"`
	By       string `json:"by"`
}

type PausePayload struct {
	By string `json:"by"`
}

type ProductCreatedPayload struct {
	ProductID   uint64 `json:"productId"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	BatchNumber string `json:"batchNumber"`
	ContentHash string `json:"contentHash"`
}

type LocationUpdatedPayload struct {
	ProductID uint64   `json:"productId"`
	Location  Location `json:"location"`
}

type ProductStatusPayload struct {
	ProductID uint64        `json:"productId"`
	Status    ProductStatus `json:"status"`
	Location  Location      `json:"location"`
	By        string        `json:"by"`
}

type ProductRecalledPayload struct {
	ProductID uint64 `json:"productId"`
	Reason    string `json:"reason"`
	By        string `json:"by"`
}

type CertificationPayload struct {
	ProductID     uint64 `json:"productId"`
	Certification string `json:"certification"`
	By            string `json:"by"`
}

type ShipmentCreatedPayload struct {
	ShipmentID  uint64   `json:"shipmentId"`
	ProductIDs  []uint64 `json:"productIds"`
	Sender      string   `json:"sender"`
	Receiver    string   `json:"receiver"`
	ContentHash string   `json:"contentHash"`
}

type ShipmentStatusPayload struct {
	ShipmentID   uint64         `json:"shipmentId"`
	Status       ShipmentStatus `json:"status"`
	TransitIndex uint64         `json:"transitIndex"`
	Location     Location       `json:"location"`
	By           string         `json:"by"`
}

type QualityCheckPayload struct {
	ProductID   uint64        `json:"productId"`
	Index       uint64        `json:"index"`
	Inspector   string        `json:"inspector"`
	Status      QualityStatus `json:"status"`
	ContentHash string        `json:"contentHash"`
}

const eventKeyPrefix = "event_"

// eventKey scopes events to the transaction that emitted them, so
// unrelated transactions never touch a shared key.
func eventKey(txID string, index int) string {
	return fmt.Sprintf("%s%s_%04d", eventKeyPrefix, txID, index)
}

// EventLog appends events to state and hands them to the transaction for
// publication on commit.
type EventLog struct {
	tx   Tx
	next int
}

func NewEventLog(tx Tx) *EventLog {
	return &EventLog{tx: tx}
}

func (l *EventLog) Append(name string, at time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	txID := l.tx.TxID()
	ev := Event{
		ID:      uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%s/%d/%s", txID, l.next, name))).String(),
		TxID:    txID,
		Index:   l.next,
		Name:    name,
		TxTime:  at.UTC(),
		Payload: raw,
	}
	if err := putJSON(l.tx, eventKey(txID, ev.Index), ev); err != nil {
		return Event{}, err
	}
	l.next++
	l.tx.Emit(ev)
	return ev, nil
}

// readEvents returns the events emitted by one transaction in emission order.
func readEvents(r Reader, txID string) ([]Event, error) {
	events := []Event{}
	for i := 0; ; i++ {
		var ev Event
		found, err := getJSON(r, eventKey(txID, i), &ev)
		if err != nil {
			return nil, err
		}
		if !found {
			return events, nil
		}
		events = append(events, ev)
	}
}
