package ledger

import (
	"fmt"
	"strings"
)

// HashRegistry is a one-time-use set of tokens. Membership is permanent.
type HashRegistry struct {
	r      Reader
	tx     Tx
	prefix string
	dupErr error
	clean  func(string) string
}

// NewHashRegistry returns the content-hash namespace shared by products and
// shipments. tx may be nil for read-only use.
func NewHashRegistry(r Reader, tx Tx) *HashRegistry {
	return &HashRegistry{r: r, tx: tx, prefix: "hash_", dupErr: ErrDuplicateHash}
}

// NewBatchRegistry returns the product batch-number namespace.
func NewBatchRegistry(r Reader, tx Tx) *HashRegistry {
	return &HashRegistry{r: r, tx: tx, prefix: "batch_", dupErr: ErrInvalidBatchNumber, clean: strings.TrimSpace}
}

func (h *HashRegistry) normalize(token string) string {
	if h.clean == nil {
		return token
	}
	return h.clean(token)
}

func (h *HashRegistry) IsUsed(token string) (bool, error) {
	token = h.normalize(token)
	data, err := h.r.GetState(h.prefix + token)
	if err != nil {
		return false, fmt.Errorf("failed to read %s%s: %w", h.prefix, token, err)
	}
	return data != nil, nil
}

// Commit records token as used, failing if it already is.
func (h *HashRegistry) Commit(token string) error {
	token = h.normalize(token)
	used, err := h.IsUsed(token)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: %s", h.dupErr, token)
	}
	if err := h.tx.PutState(h.prefix+token, []byte{1}); err != nil {
		return fmt.Errorf("failed to write %s%s: %w", h.prefix, token, err)
	}
	return nil
}
