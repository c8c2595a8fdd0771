package contracts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/shim"

	"github.com/provenance-supply-chain/chaincode/supply-chain/ledger"
)

// stubStore runs engine operations against the world state of the current
// transaction. The peer serializes and commits; writes are staged so an
// operation reads its own writes and a rejected call writes nothing.
type stubStore struct {
	stub shim.ChaincodeStubInterface
}

func (s stubStore) View(ctx context.Context, fn func(ctx context.Context, r ledger.Reader) error) error {
	return fn(ctx, s.stub)
}

// Update flushes the staged writes and sets one chaincode event per
// transaction, named after the first event, carrying all of them. Events
// are keyed by the peer's transaction id; block order is the global order.
func (s stubStore) Update(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	events, err := ledger.RunStaged(ctx, s.stub, s.stub.GetTxID(), fn)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := s.stub.SetEvent(events[0].Name, payload); err != nil {
		return fmt.Errorf("failed to set event %s: %w", events[0].Name, err)
	}
	return nil
}
