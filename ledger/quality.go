package ledger

import (
	"fmt"
	"strings"
)

const qualityKeyPrefix = "quality_"

func qualityCountKey(productID uint64) string {
	return fmt.Sprintf("%scount_%d", qualityKeyPrefix, productID)
}

func qualityKey(productID, index uint64) string {
	return fmt.Sprintf("%s%d_%d", qualityKeyPrefix, productID, index)
}

// QualityLedger keeps the ordered quality checks of each product. Checks are
// written once under their own index and never rewritten.
type QualityLedger struct {
	r  Reader
	tx Tx
}

func NewQualityLedger(r Reader, tx Tx) *QualityLedger {
	return &QualityLedger{r: r, tx: tx}
}

// Record appends a check for in.ProductID. The product itself is validated
// and updated by the caller.
func (l *QualityLedger) Record(call Call, in QualityCheckInput) (*QualityCheck, error) {
	params, err := buildParameters(in.ParameterNames, in.ParameterValues)
	if err != nil {
		return nil, err
	}
	status, err := ParseQualityStatus(string(in.Status))
	if err != nil {
		return nil, err
	}
	in.Status = status
	count, err := readCounter(l.r, qualityCountKey(in.ProductID))
	if err != nil {
		return nil, err
	}
	hash, err := qualityCheckHash(in.ProductID, in.Status, in.Notes, call.Caller, call.Now)
	if err != nil {
		return nil, err
	}
	check := &QualityCheck{
		Index:       count,
		ProductID:   in.ProductID,
		Inspector:   call.Caller,
		Status:      in.Status,
		Notes:       in.Notes,
		Timestamp:   call.Now.UTC(),
		Parameters:  params,
		ContentHash: hash,
	}
	if err := putJSON(l.tx, qualityKey(in.ProductID, count), check); err != nil {
		return nil, err
	}
	if _, err := nextSequence(l.tx, qualityCountKey(in.ProductID)); err != nil {
		return nil, err
	}
	return check, nil
}

func (l *QualityLedger) List(productID uint64) ([]QualityCheck, error) {
	count, err := readCounter(l.r, qualityCountKey(productID))
	if err != nil {
		return nil, err
	}
	checks := make([]QualityCheck, 0, count)
	for i := uint64(0); i < count; i++ {
		var c QualityCheck
		found, err := getJSON(l.r, qualityKey(productID, i), &c)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("quality check %d of product %d missing", i, productID)
		}
		checks = append(checks, c)
	}
	return checks, nil
}

func buildParameters(names, values []string) ([]QualityParameter, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%w: %d parameter names, %d values", ErrInvalidParameter, len(names), len(values))
	}
	params := make([]QualityParameter, 0, len(names))
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: parameter %d has no name", ErrInvalidParameter, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidParameter, name)
		}
		seen[name] = true
		params = append(params, QualityParameter{Name: name, Value: values[i]})
	}
	return params, nil
}
