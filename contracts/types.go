package contracts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/provenance-supply-chain/chaincode/supply-chain/ledger"
)

// locationDoc is the JSON shape of a location argument. Coordinates are
// micro-degrees; the recording time always comes from the transaction.
type locationDoc struct {
	FacilityName string `json:"facilityName"`
	Country      string `json:"country"`
	Region       string `json:"region"`
	Latitude     int64  `json:"latitude"`
	Longitude    int64  `json:"longitude"`
}

// The argument types below hold transaction arguments as submitted. The
// engine resolves them only once the pause and role gates have passed.

type locationArg string

func (a locationArg) Resolve() (ledger.Location, error) {
	var doc locationDoc
	if err := json.Unmarshal([]byte(a), &doc); err != nil {
		return ledger.Location{}, fmt.Errorf("%w: %v", ledger.ErrInvalidLocation, err)
	}
	return ledger.Location{
		FacilityName: doc.FacilityName,
		Country:      doc.Country,
		Region:       doc.Region,
		Latitude:     doc.Latitude,
		Longitude:    doc.Longitude,
	}, nil
}

type productArgs struct {
	name, description, price, batchNumber string
	manufacturingDate, expiryDate         string
	location                              locationArg
}

func (a productArgs) Resolve() (ledger.CreateProductInput, error) {
	in := ledger.CreateProductInput{Name: a.name, Description: a.description, BatchNumber: a.batchNumber}
	var err error
	if in.Price, err = parsePrice(a.price); err != nil {
		return in, err
	}
	if in.ManufacturingDate, err = parseTimestamp("manufacturingDate", a.manufacturingDate); err != nil {
		return in, err
	}
	if in.ExpiryDate, err = parseTimestamp("expiryDate", a.expiryDate); err != nil {
		return in, err
	}
	in.Location, err = a.location.Resolve()
	return in, err
}

type shipmentArgs struct {
	productIDs, receiver string
	origin, destination  locationArg
}

func (a shipmentArgs) Resolve() (ledger.CreateShipmentInput, error) {
	in := ledger.CreateShipmentInput{Receiver: a.receiver}
	var err error
	if in.ProductIDs, err = parseIDs(a.productIDs); err != nil {
		return in, err
	}
	if in.Origin, err = a.origin.Resolve(); err != nil {
		return in, err
	}
	in.Destination, err = a.destination.Resolve()
	return in, err
}

type qualityArgs struct {
	productID               uint64
	status, notes           string
	paramNames, paramValues string
}

func (a qualityArgs) Product() uint64 { return a.productID }

func (a qualityArgs) Resolve() (ledger.QualityCheckInput, error) {
	in := ledger.QualityCheckInput{ProductID: a.productID, Status: ledger.QualityStatus(a.status), Notes: a.notes}
	var err error
	if in.ParameterNames, err = parseStrings("parameterNames", a.paramNames); err != nil {
		return in, err
	}
	in.ParameterValues, err = parseStrings("parameterValues", a.paramValues)
	return in, err
}

func parsePrice(price string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ledger.ErrInvalidPrice, price)
	}
	return d, nil
}

func parseTimestamp(name, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339: %v", ledger.ErrInvalidTimeRange, name, err)
	}
	return t, nil
}

func parseIDs(idsJSON string) ([]uint64, error) {
	var ids []uint64
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return nil, fmt.Errorf("%w: product ids: %v", ledger.ErrInvalidParameter, err)
	}
	return ids, nil
}

// parseStrings accepts an empty argument as an empty list.
func parseStrings(name, listJSON string) ([]string, error) {
	if strings.TrimSpace(listJSON) == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(listJSON), &list); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ledger.ErrInvalidParameter, name, err)
	}
	return list, nil
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
