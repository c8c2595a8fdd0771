package contracts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/provenance-supply-chain/chaincode/supply-chain/ledger"
)

// SupplyChainContract exposes the supply chain engine as chaincode
// transactions. Structured arguments are JSON strings and results are JSON
// documents.
type SupplyChainContract struct {
	contractapi.Contract

	// Policy must be identical on every endorsing peer. The zero value
	// selects ledger.DefaultPolicy.
	Policy   ledger.Policy
	Logger   *slog.Logger
	Recorder ledger.Recorder
}

func (s *SupplyChainContract) engine(ctx contractapi.TransactionContextInterface) *ledger.Engine {
	opts := []ledger.Option{}
	if s.Policy.MaxBatchSize > 0 {
		opts = append(opts, ledger.WithPolicy(s.Policy))
	}
	if s.Logger != nil {
		opts = append(opts, ledger.WithLogger(s.Logger))
	}
	if s.Recorder != nil {
		opts = append(opts, ledger.WithRecorder(s.Recorder))
	}
	return ledger.NewEngine(stubStore{stub: ctx.GetStub()}, opts...)
}

func (s *SupplyChainContract) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// callFrom identifies the submitter by MSP and takes the proposal timestamp
// as the clock, so every endorser sees the same time.
func callFrom(ctx contractapi.TransactionContextInterface) (ledger.Call, error) {
	mspID, err := ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return ledger.Call{}, fmt.Errorf("failed to get caller identity: %v", err)
	}
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return ledger.Call{}, fmt.Errorf("failed to get transaction timestamp: %v", err)
	}
	return ledger.Call{Caller: mspID, Now: ts.AsTime()}, nil
}

// fail prefixes err with its kind so clients can classify the failure.
func (s *SupplyChainContract) fail(ctx contractapi.TransactionContextInterface, tx string, err error) error {
	kind := ledger.Kind(err)
	s.logger().Warn("transaction failed", "tx", tx, "txId", ctx.GetStub().GetTxID(), "kind", kind, "error", err)
	return fmt.Errorf("%s: %w", kind, err)
}

// InitLedger makes the submitting organization the root admin.
func (s *SupplyChainContract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	call, err := callFrom(ctx)
	if err != nil {
		return err
	}
	if err := s.engine(ctx).Initialize(context.Background(), call); err != nil {
		return s.fail(ctx, "InitLedger", err)
	}
	return nil
}

// CreateProduct registers a new product owned by the calling manufacturer
// and returns it.
func (s *SupplyChainContract) CreateProduct(ctx contractapi.TransactionContextInterface,
	name string, description string, price string, batchNumber string,
	manufacturingDate string, expiryDate string, locationJSON string) (string, error) {

	call, err := callFrom(ctx)
	if err != nil {
		return "", err
	}
	args := productArgs{
		name:              name,
		description:       description,
		price:             price,
		batchNumber:       batchNumber,
		manufacturingDate: manufacturingDate,
		expiryDate:        expiryDate,
		location:          locationArg(locationJSON),
	}
	product, err := s.engine(ctx).CreateProduct(context.Background(), call, args)
	if err != nil {
		return "", s.fail(ctx, "CreateProduct", err)
	}
	return toJSON(product)
}

// UpdateProductStatus moves a product owned by the caller to a new status
// and location.
func (s *SupplyChainContract) UpdateProductStatus(ctx contractapi.TransactionContextInterface,
	productID uint64, status string, locationJSON string) (string, error) {

	call, err := callFrom(ctx)
	if err != nil {
		return "", err
	}
	product, err := s.engine(ctx).UpdateProductStatus(context.Background(), call, productID, ledger.ProductStatus(status), locationArg(locationJSON))
	if err != nil {
		return "", s.fail(ctx, "UpdateProductStatus", err)
	}
	return toJSON(product)
}

func (s *SupplyChainContract) RecallProduct(ctx contractapi.TransactionContextInterface,
	productID uint64, reason string) error {

	call, err := callFrom(ctx)
	if err != nil {
		return err
	}
	if _, err := s.engine(ctx).RecallProduct(context.Background(), call, productID, reason); err != nil {
		return s.fail(ctx, "RecallProduct", err)
	}
	return nil
}

func (s *SupplyChainContract) AddCertification(ctx contractapi.TransactionContextInterface,
	productID uint64, certification string) error {

	call, err := callFrom(ctx)
	if err != nil {
		return err
	}
	if _, err := s.engine(ctx).AddCertification(context.Background(), call, productID, certification); err != nil {
		return s.fail(ctx, "AddCertification", err)
	}
	return nil
}

// GetProduct returns an active product as JSON.
func (s *SupplyChainContract) GetProduct(ctx contractapi.TransactionContextInterface, productID uint64) (string, error) {
	product, err := s.engine(ctx).GetProduct(context.Background(), productID)
	if err != nil {
		return "", s.fail(ctx, "GetProduct", err)
	}
	return toJSON(product)
}

// GetOwnedProducts returns the ids of every product created by mspID.
func (s *SupplyChainContract) GetOwnedProducts(ctx contractapi.TransactionContextInterface, mspID string) (string, error) {
	ids, err := s.engine(ctx).GetOwnedProducts(context.Background(), mspID)
	if err != nil {
		return "", s.fail(ctx, "GetOwnedProducts", err)
	}
	return toJSON(ids)
}

func (s *SupplyChainContract) GetProductCount(ctx contractapi.TransactionContextInterface) (uint64, error) {
	n, err := s.engine(ctx).ProductCount(context.Background())
	if err != nil {
		return 0, s.fail(ctx, "GetProductCount", err)
	}
	return n, nil
}

// CreateShipment opens a pending shipment from the caller to receiver.
// productIDsJSON is a JSON array of product ids.
func (s *SupplyChainContract) CreateShipment(ctx contractapi.TransactionContextInterface,
	productIDsJSON string, receiver string, originJSON string, destinationJSON string) (string, error) {

	call, err := callFrom(ctx)
	if err != nil {
		return "", err
	}
	args := shipmentArgs{
		productIDs:  productIDsJSON,
		receiver:    receiver,
		origin:      locationArg(originJSON),
		destination: locationArg(destinationJSON),
	}
	shipment, err := s.engine(ctx).CreateShipment(context.Background(), call, args)
	if err != nil {
		return "", s.fail(ctx, "CreateShipment", err)
	}
	return toJSON(shipment)
}

// UpdateShipmentStatus records a status change and a transit point. Only
// the sender or receiver may call it.
func (s *SupplyChainContract) UpdateShipmentStatus(ctx contractapi.TransactionContextInterface,
	shipmentID uint64, status string, locationJSON string) (string, error) {

	call, err := callFrom(ctx)
	if err != nil {
		return "", err
	}
	shipment, err := s.engine(ctx).UpdateShipmentStatus(context.Background(), call, shipmentID, ledger.ShipmentStatus(status), locationArg(locationJSON))
	if err != nil {
		return "", s.fail(ctx, "UpdateShipmentStatus", err)
	}
	return toJSON(shipment)
}

func (s *SupplyChainContract) GetShipment(ctx contractapi.TransactionContextInterface, shipmentID uint64) (string, error) {
	shipment, err := s.engine(ctx).GetShipment(context.Background(), shipmentID)
	if err != nil {
		return "", s.fail(ctx, "GetShipment", err)
	}
	return toJSON(shipment)
}

func (s *SupplyChainContract) GetShipmentTransitPoints(ctx contractapi.TransactionContextInterface, shipmentID uint64) (string, error) {
	points, err := s.engine(ctx).GetShipmentTransitPoints(context.Background(), shipmentID)
	if err != nil {
		return "", s.fail(ctx, "GetShipmentTransitPoints", err)
	}
	return toJSON(points)
}

func (s *SupplyChainContract) GetShipmentCount(ctx contractapi.TransactionContextInterface) (uint64, error) {
	n, err := s.engine(ctx).ShipmentCount(context.Background())
	if err != nil {
		return 0, s.fail(ctx, "GetShipmentCount", err)
	}
	return n, nil
}

// PerformQualityCheck records an inspection. parameterNamesJSON and
// parameterValuesJSON are parallel JSON string arrays and may be empty.
func (s *SupplyChainContract) PerformQualityCheck(ctx contractapi.TransactionContextInterface,
	productID uint64, status string, notes string, parameterNamesJSON string, parameterValuesJSON string) (string, error) {

	call, err := callFrom(ctx)
	if err != nil {
		return "", err
	}
	args := qualityArgs{
		productID:   productID,
		status:      status,
		notes:       notes,
		paramNames:  parameterNamesJSON,
		paramValues: parameterValuesJSON,
	}
	check, err := s.engine(ctx).PerformQualityCheck(context.Background(), call, args)
	if err != nil {
		return "", s.fail(ctx, "PerformQualityCheck", err)
	}
	return toJSON(check)
}

func (s *SupplyChainContract) GetQualityChecks(ctx contractapi.TransactionContextInterface, productID uint64) (string, error) {
	checks, err := s.engine(ctx).GetQualityChecks(context.Background(), productID)
	if err != nil {
		return "", s.fail(ctx, "GetQualityChecks", err)
	}
	return toJSON(checks)
}

func (s *SupplyChainContract) IsHashUsed(ctx contractapi.TransactionContextInterface, hash string) (bool, error) {
	used, err := s.engine(ctx).IsHashUsed(context.Background(), hash)
	if err != nil {
		return false, s.fail(ctx, "IsHashUsed", err)
	}
	return used, nil
}

func (s *SupplyChainContract) IsBatchNumberUsed(ctx contractapi.TransactionContextInterface, batchNumber string) (bool, error) {
	used, err := s.engine(ctx).IsBatchNumberUsed(context.Background(), batchNumber)
	if err != nil {
		return false, s.fail(ctx, "IsBatchNumberUsed", err)
	}
	return used, nil
}

// GetEvents returns the events persisted by transaction txID. Ordering
// across transactions comes from the peer's block event stream.
func (s *SupplyChainContract) GetEvents(ctx contractapi.TransactionContextInterface, txID string) (string, error) {
	events, err := s.engine(ctx).Events(context.Background(), txID)
	if err != nil {
		return "", s.fail(ctx, "GetEvents", err)
	}
	return toJSON(events)
}
