package ledger

import (
	"fmt"
	"strings"
)

const (
	productCountKey  = "product_count"
	productKeyPrefix = "product_"
	ownedKeyPrefix   = "owned_"
)

func productKey(id uint64) string {
	return fmt.Sprintf("%s%d", productKeyPrefix, id)
}

// ProductLedger owns product records, their history and the owner index.
type ProductLedger struct {
	r       Reader
	tx      Tx
	hashes  *HashRegistry
	batches *HashRegistry
}

// NewProductLedger binds the ledger to a transaction and the registries it
// commits into. tx and the registries may be nil for read-only use.
func NewProductLedger(r Reader, tx Tx, hashes, batches *HashRegistry) *ProductLedger {
	return &ProductLedger{r: r, tx: tx, hashes: hashes, batches: batches}
}

func (l *ProductLedger) Count() (uint64, error) {
	return readCounter(l.r, productCountKey)
}

// Get returns a product that exists and is active.
func (l *ProductLedger) Get(id uint64) (*Product, error) {
	count, err := l.Count()
	if err != nil {
		return nil, err
	}
	if id == 0 || id > count {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	var p Product
	found, err := getJSON(l.r, productKey(id), &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: %d", ErrProductNotActive, id)
	}
	return &p, nil
}

// Create validates in, assigns the next id and stores the product.
// Policy bounds and role checks are the caller's job.
func (l *ProductLedger) Create(call Call, in CreateProductInput) (*Product, error) {
	batch := strings.TrimSpace(in.BatchNumber)
	if batch == "" {
		return nil, fmt.Errorf("%w: batch number is empty", ErrInvalidBatchNumber)
	}
	used, err := l.batches.IsUsed(batch)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, fmt.Errorf("%w: %s already used", ErrInvalidBatchNumber, batch)
	}
	if in.ManufacturingDate.Before(call.Now) {
		return nil, fmt.Errorf("%w: manufacturing date is in the past", ErrInvalidTimeRange)
	}
	if !in.ExpiryDate.After(in.ManufacturingDate) {
		return nil, fmt.Errorf("%w: expiry date must follow manufacturing date", ErrInvalidTimeRange)
	}
	if err := in.Location.Validate(); err != nil {
		return nil, err
	}

	id, err := nextSequence(l.tx, productCountKey)
	if err != nil {
		return nil, err
	}
	hash, err := productHash(id, in.Name, batch, in.ManufacturingDate, call.Caller, call.Now)
	if err != nil {
		return nil, err
	}
	if err := l.hashes.Commit(hash); err != nil {
		return nil, err
	}
	if err := l.batches.Commit(batch); err != nil {
		return nil, err
	}

	now := call.Now.UTC()
	p := &Product{
		ID:                id,
		Name:              in.Name,
		Description:       in.Description,
		Price:             in.Price,
		Owner:             call.Caller,
		Status:            ProductStatusCreated,
		QualityStatus:     QualityStatusPending,
		ContentHash:       hash,
		BatchNumber:       batch,
		ManufacturingDate: in.ManufacturingDate.UTC(),
		ExpiryDate:        in.ExpiryDate.UTC(),
		Certifications:    []string{},
		Location:          in.Location.recordedAt(now),
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	p.History.append("created by " + call.Caller)

	if err := l.put(p); err != nil {
		return nil, err
	}
	if err := l.addOwned(call.Caller, id); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateStatus moves an owned product to a new status and location.
func (l *ProductLedger) UpdateStatus(call Call, id uint64, status ProductStatus, arg Args[Location]) (*Product, error) {
	p, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Owner != call.Caller {
		return nil, fmt.Errorf("%w: %s does not own product %d", ErrUnauthorized, call.Caller, id)
	}
	status, err = ParseProductStatus(string(status))
	if err != nil {
		return nil, err
	}
	if status == ProductStatusRecalled {
		return nil, fmt.Errorf("%w: use recall to mark a product recalled", ErrInvalidStatus)
	}
	if p.Status == ProductStatusRecalled {
		return nil, fmt.Errorf("%w: product %d is recalled", ErrInvalidStatus, id)
	}
	loc, err := arg.Resolve()
	if err != nil {
		return nil, err
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	p.Status = status
	p.Location = loc.recordedAt(call.Now)
	p.UpdatedAt = call.Now.UTC()
	p.History.append(fmt.Sprintf("status updated to %s", status))
	return p, l.put(p)
}

func (l *ProductLedger) Recall(call Call, id uint64, reason string) (*Product, error) {
	p, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	p.Status = ProductStatusRecalled
	p.UpdatedAt = call.Now.UTC()
	p.History.append("Recalled: " + reason)
	return p, l.put(p)
}

func (l *ProductLedger) AddCertification(call Call, id uint64, label string) (*Product, error) {
	p, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(label) == "" {
		return nil, fmt.Errorf("%w: certification label is empty", ErrInvalidParameter)
	}
	p.Certifications = append(p.Certifications, label)
	p.UpdatedAt = call.Now.UTC()
	return p, l.put(p)
}

// RecordQuality overwrites the product's quality status and logs the check.
func (l *ProductLedger) RecordQuality(call Call, id uint64, status QualityStatus) (*Product, error) {
	p, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	p.QualityStatus = status
	p.UpdatedAt = call.Now.UTC()
	p.History.append(fmt.Sprintf("quality check %s by %s", status, call.Caller))
	return p, l.put(p)
}

// OwnedBy lists the ids of products created by identity. The index is
// append-only; nothing removes entries from it.
func (l *ProductLedger) OwnedBy(identity string) ([]uint64, error) {
	ids := []uint64{}
	if _, err := getJSON(l.r, ownedKeyPrefix+identity, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (l *ProductLedger) addOwned(identity string, id uint64) error {
	ids, err := l.OwnedBy(identity)
	if err != nil {
		return err
	}
	return putJSON(l.tx, ownedKeyPrefix+identity, append(ids, id))
}

func (l *ProductLedger) put(p *Product) error {
	return putJSON(l.tx, productKey(p.ID), p)
}
