package ledger

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CoordinateScale is the fixed-point scale of Location coordinates (micro-degrees).
const CoordinateScale = 1_000_000

// Role is a capability an identity can hold. An identity may hold several.
type Role string

const (
	RoleAdmin            Role = "ADMIN"
	RoleManufacturer     Role = "MANUFACTURER"
	RoleDistributor      Role = "DISTRIBUTOR"
	RoleRetailer         Role = "RETAILER"
	RoleQualityInspector Role = "QUALITY_INSPECTOR"
)

// Roles lists every known role in a stable order.
var Roles = []Role{RoleAdmin, RoleManufacturer, RoleDistributor, RoleRetailer, RoleQualityInspector}

// ParseRole converts the wire form of a role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(Roles, r) {
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

type ProductStatus string

const (
	ProductStatusCreated   ProductStatus = "CREATED"
	ProductStatusInTransit ProductStatus = "IN_TRANSIT"
	ProductStatusStored    ProductStatus = "STORED"
	ProductStatusDelivered ProductStatus = "DELIVERED"
	ProductStatusRecalled  ProductStatus = "RECALLED"
)

func ParseProductStatus(s string) (ProductStatus, error) {
	switch st := ProductStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case ProductStatusCreated, ProductStatusInTransit, ProductStatusStored,
		ProductStatusDelivered, ProductStatusRecalled:
		return st, nil
	}
	return "", fmt.Errorf("%w: product status %q", ErrInvalidStatus, s)
}

type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "PENDING"
	ShipmentStatusInTransit ShipmentStatus = "IN_TRANSIT"
	ShipmentStatusDelivered ShipmentStatus = "DELIVERED"
	ShipmentStatusDelayed   ShipmentStatus = "DELAYED"
	ShipmentStatusCancelled ShipmentStatus = "CANCELLED"
)

func ParseShipmentStatus(s string) (ShipmentStatus, error) {
	switch st := ShipmentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case ShipmentStatusPending, ShipmentStatusInTransit, ShipmentStatusDelivered,
		ShipmentStatusDelayed, ShipmentStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: shipment status %q", ErrInvalidStatus, s)
}

type QualityStatus string

const (
	QualityStatusPending QualityStatus = "PENDING"
	QualityStatusPassed  QualityStatus = "PASSED"
	QualityStatusFailed  QualityStatus = "FAILED"
)

func ParseQualityStatus(s string) (QualityStatus, error) {
	switch st := QualityStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case QualityStatusPending, QualityStatusPassed, QualityStatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: quality status %q", ErrInvalidStatus, s)
}

// Location is where an entity was at RecordedAt. Coordinates are signed
// micro-degrees. Locations are values: every update stores a new one.
type Location struct {
	FacilityName string    `json:"facilityName"`
	Country      string    `json:"country"`
	Region       string    `json:"region"`
	Latitude     int64     `json:"latitude"`
	Longitude    int64     `json:"longitude"`
	RecordedAt   time.Time `json:"recordedAt"`
}

// Validate rejects locations without a facility or country and coordinates
// outside the valid ranges.
func (l Location) Validate() error {
	switch {
	case strings.TrimSpace(l.FacilityName) == "":
		return fmt.Errorf("%w: facility name is required", ErrInvalidLocation)
	case strings.TrimSpace(l.Country) == "":
		return fmt.Errorf("%w: country is required", ErrInvalidLocation)
	case l.Latitude < -90*CoordinateScale || l.Latitude > 90*CoordinateScale:
		return fmt.Errorf("%w: latitude %d out of range", ErrInvalidLocation, l.Latitude)
	case l.Longitude < -180*CoordinateScale || l.Longitude > 180*CoordinateScale:
		return fmt.Errorf("%w: longitude %d out of range", ErrInvalidLocation, l.Longitude)
	}
	return nil
}

func (l Location) recordedAt(t time.Time) Location {
	l.RecordedAt = t.UTC()
	return l
}

// History is an append-only log of free-text entries owned by a product.
// Only this package can append; Entries returns a copy.
type History struct {
	entries []string
}

func (h *History) append(entry string) {
	h.entries = append(h.entries, entry)
}

func (h History) Entries() []string {
	return slices.Clone(h.entries)
}

func (h History) Len() int {
	return len(h.entries)
}

func (h History) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.entries)
}

func (h *History) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &h.entries)
}

// Product is a tracked good.
type Product struct {
	ID                uint64          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	Owner             string          `json:"owner"`
	Status            ProductStatus   `json:"status"`
	QualityStatus     QualityStatus   `json:"qualityStatus"`
	History           History         `json:"history"`
	ContentHash       string          `json:"contentHash"`
	BatchNumber       string          `json:"batchNumber"`
	ManufacturingDate time.Time       `json:"manufacturingDate"`
	ExpiryDate        time.Time       `json:"expiryDate"`
	Certifications    []string        `json:"certifications"`
	Location          Location        `json:"location"`
	Active            bool            `json:"active"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Shipment moves one or more products from Sender to Receiver.
// Transit points live under their own keys; TransitPointCount is the next index.
type Shipment struct {
	ID                uint64         `json:"id"`
	ProductIDs        []uint64       `json:"productIds"`
	Sender            string         `json:"sender"`
	Receiver          string         `json:"receiver"`
	Status            ShipmentStatus `json:"status"`
	CreatedAt         time.Time      `json:"createdAt"`
	DeliveredAt       *time.Time     `json:"deliveredAt,omitempty"`
	Origin            Location       `json:"origin"`
	Destination       Location       `json:"destination"`
	TransitPointCount uint64         `json:"transitPointCount"`
	ContentHash       string         `json:"contentHash"`
	Active            bool           `json:"active"`
}

// QualityParameter is one named measurement of a quality check.
type QualityParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// QualityCheck is an immutable inspection record of a product.
type QualityCheck struct {
	Index       uint64             `json:"index"`
	ProductID   uint64             `json:"productId"`
	Inspector   string             `json:"inspector"`
	Status      QualityStatus      `json:"status"`
	Notes       string             `json:"notes"`
	Timestamp   time.Time          `json:"timestamp"`
	Parameters  []QualityParameter `json:"parameters"`
	ContentHash string             `json:"contentHash"`
}

// Parameter looks up a parameter value by name.
func (c QualityCheck) Parameter(name string) (string, bool) {
	for _, p := range c.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// RoleGrant is the stored record behind a role membership.
type RoleGrant struct {
	Identity  string    `json:"identity"`
	Role      Role      `json:"role"`
	GrantedBy string    `json:"grantedBy"`
	GrantedAt time.Time `json:"grantedAt"`
	Active    bool      `json:"active"`
}

// Call carries the verified caller and the host clock for one request.
type Call struct {
	Caller string
	Now    time.Time
}

// Policy holds the engine-wide bounds. Every endorsing peer must use the same values.
type Policy struct {
	MinPrice     decimal.Decimal
	MaxPrice     decimal.Decimal
	MaxBatchSize int
}

// DefaultPolicy returns the bounds used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MinPrice:     decimal.NewFromInt(1),
		MaxPrice:     decimal.NewFromInt(1_000_000),
		MaxBatchSize: 100,
	}
}

// Args defers decoding of caller-supplied arguments. The engine resolves
// them after the pause and role gates, so an argument that fails to decode
// is reported only to a caller who could otherwise have run the operation.
type Args[T any] interface {
	Resolve() (T, error)
}

// QualityCheckArgs also names the product up front: its existence is
// checked before the inspector role.
type QualityCheckArgs interface {
	Args[QualityCheckInput]
	Product() uint64
}

// CreateProductInput are the caller-supplied fields of a new product.
type CreateProductInput struct {
	Name              string
	Description       string
	Price             decimal.Decimal
	BatchNumber       string
	ManufacturingDate time.Time
	ExpiryDate        time.Time
	Location          Location
}

type CreateShipmentInput struct {
	ProductIDs  []uint64
	Receiver    string
	Origin      Location
	Destination Location
}

type QualityCheckInput struct {
	ProductID       uint64
	Status          QualityStatus
	Notes           string
	ParameterNames  []string
	ParameterValues []string
}

func (in CreateProductInput) Resolve() (CreateProductInput, error)   { return in, nil }
func (in CreateShipmentInput) Resolve() (CreateShipmentInput, error) { return in, nil }
func (in QualityCheckInput) Resolve() (QualityCheckInput, error)     { return in, nil }
func (in QualityCheckInput) Product() uint64                         { return in.ProductID }
func (l Location) Resolve() (Location, error)                        { return l, nil }
