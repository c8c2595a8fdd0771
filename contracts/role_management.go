package contracts

import (
	"context"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/provenance-supply-chain/chaincode/supply-chain/ledger"
)

// GrantRole allows an admin to give an organization a role
func (s *SupplyChainContract) GrantRole(ctx contractapi.TransactionContextInterface,
	targetMSPID string, role string) error {

	call, err := callFrom(ctx)
	if err != nil {
		return err
	}
	if err := s.engine(ctx).GrantRole(context.Background(), call, targetMSPID, ledger.Role(role)); err != nil {
		return s.fail(ctx, "GrantRole", err)
	}
	return nil
}

// RevokeRole deactivates one role of an organization. The root admin keeps
// ADMIN.
func (s *SupplyChainContract) RevokeRole(ctx contractapi.TransactionContextInterface,
	targetMSPID string, role string) error {

	call, err := callFrom(ctx)
	if err != nil {
		return err
	}
	if err := s.engine(ctx).RevokeRole(context.Background(), call, targetMSPID, ledger.Role(role)); err != nil {
		return s.fail(ctx, "RevokeRole", err)
	}
	return nil
}

func (s *SupplyChainContract) HasRole(ctx contractapi.TransactionContextInterface,
	mspID string, role string) (bool, error) {

	parsed, err := ledger.ParseRole(role)
	if err != nil {
		return false, s.fail(ctx, "HasRole", err)
	}
	ok, err := s.engine(ctx).HasRole(context.Background(), mspID, parsed)
	if err != nil {
		return false, s.fail(ctx, "HasRole", err)
	}
	return ok, nil
}

// GetRoles returns the active roles of an organization as a JSON array
func (s *SupplyChainContract) GetRoles(ctx contractapi.TransactionContextInterface, mspID string) (string, error) {
	roles, err := s.engine(ctx).RolesOf(context.Background(), mspID)
	if err != nil {
		return "", s.fail(ctx, "GetRoles", err)
	}
	return toJSON(roles)
}

// Pause stops every product, shipment and quality mutation until Unpause.
func (s *SupplyChainContract) Pause(ctx contractapi.TransactionContextInterface) error {
	call, err := callFrom(ctx)
	if err != nil {
		return err
	}
	if err := s.engine(ctx).Pause(context.Background(), call); err != nil {
		return s.fail(ctx, "Pause", err)
	}
	return nil
}

func (s *SupplyChainContract) Unpause(ctx contractapi.TransactionContextInterface) error {
	call, err := callFrom(ctx)
	if err != nil {
		return err
	}
	if err := s.engine(ctx).Unpause(context.Background(), call); err != nil {
		return s.fail(ctx, "Unpause", err)
	}
	return nil
}

func (s *SupplyChainContract) IsPaused(ctx contractapi.TransactionContextInterface) (bool, error) {
	paused, err := s.engine(ctx).IsPaused(context.Background())
	if err != nil {
		return false, s.fail(ctx, "IsPaused", err)
	}
	return paused, nil
}
