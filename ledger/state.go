package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

func getJSON(r Reader, key string, v any) (bool, error) {
	data, err := r.GetState(key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func putJSON(w Backend, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := w.PutState(key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func readCounter(r Reader, key string) (uint64, error) {
	data, err := r.GetState(key)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if data == nil {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter %s: %w", key, err)
	}
	return n, nil
}

// nextSequence increments the counter at key and returns the new value.
func nextSequence(tx Backend, key string) (uint64, error) {
	n, err := readCounter(tx, key)
	if err != nil {
		return 0, err
	}
	n++
	if err := tx.PutState(key, []byte(strconv.FormatUint(n, 10))); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", key, err)
	}
	return n, nil
}

// contentHash is the hex SHA-256 of the JSON encoding of fields. Times are
// folded to Unix nanoseconds so the digest does not depend on zone.
func contentHash(fields ...any) (string, error) {
	for i, f := range fields {
		if t, ok := f.(time.Time); ok {
			fields[i] = t.UnixNano()
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode hash input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func productHash(id uint64, name, batchNumber string, manufacturingDate time.Time, caller string, now time.Time) (string, error) {
	return contentHash(id, name, batchNumber, manufacturingDate, caller, now)
}

func shipmentHash(id uint64, productIDs []uint64, sender, receiver string, now time.Time) (string, error) {
	return contentHash(id, productIDs, sender, receiver, now)
}

func qualityCheckHash(productID uint64, status QualityStatus, notes, inspector string, now time.Time) (string, error) {
	return contentHash(productID, status, notes, inspector, now)
}
