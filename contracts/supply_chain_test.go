package contracts

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/provenance-supply-chain/chaincode/supply-chain/ledger"
)

const (
	adminMSP     = "RegulatorMSP"
	makerMSP     = "AcmeFactoryMSP"
	carrierMSP   = "FastFreightMSP"
	retailerMSP  = "CornerShopMSP"
	inspectorMSP = "LabCertMSP"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const rotterdam = `{"facilityName":"Rotterdam DC","country":"NL","region":"South Holland","latitude":51924420,"longitude":4477733}`

// mspIdentity is a client identity that only knows its MSP.
type mspIdentity struct {
	mspID string
}

func (m mspIdentity) GetID() (string, error)    { return "x509::CN=" + m.mspID, nil }
func (m mspIdentity) GetMSPID() (string, error) { return m.mspID, nil }
func (m mspIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}
func (m mspIdentity) AssertAttributeValue(name, _ string) error {
	return fmt.Errorf("attribute %s not found", name)
}
func (m mspIdentity) GetX509Certificate() (*x509.Certificate, error) { return nil, nil }

type fixture struct {
	t    *testing.T
	stub *shimtest.MockStub
	cc   *SupplyChainContract
	now  time.Time
	txs  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:    t,
		stub: shimtest.NewMockStub("supplychain", nil),
		cc:   &SupplyChainContract{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))},
		now:  start,
	}
	require.NoError(t, f.cc.InitLedger(f.as(adminMSP)))
	for msp, role := range map[string]ledger.Role{
		makerMSP:     ledger.RoleManufacturer,
		carrierMSP:   ledger.RoleDistributor,
		retailerMSP:  ledger.RoleRetailer,
		inspectorMSP: ledger.RoleQualityInspector,
	} {
		require.NoError(t, f.cc.GrantRole(f.as(adminMSP), msp, string(role)))
	}
	f.drainEvents()
	return f
}

// as starts a new mock transaction submitted by mspID at the fixture clock.
func (f *fixture) as(mspID string) contractapi.TransactionContextInterface {
	f.txs++
	f.stub.MockTransactionStart(fmt.Sprintf("tx%d", f.txs))
	f.stub.TxTimestamp = timestamppb.New(f.now)
	ctx := new(contractapi.TransactionContext)
	ctx.SetStub(f.stub)
	ctx.SetClientIdentity(mspIdentity{mspID: mspID})
	return ctx
}

// drainEvents empties the chaincode event channel and returns what it held.
func (f *fixture) drainEvents() []string {
	var names []string
	for {
		select {
		case ev := <-f.stub.ChaincodeEventsChannel:
			names = append(names, ev.EventName)
		default:
			return names
		}
	}
}

func (f *fixture) createProduct(batch string) ledger.Product {
	f.t.Helper()
	out, err := f.cc.CreateProduct(f.as(makerMSP), "Widget", "steel widget", "10.50", batch,
		f.now.Format(time.RFC3339), f.now.Add(100*time.Hour).Format(time.RFC3339), rotterdam)
	require.NoError(f.t, err)
	var p ledger.Product
	require.NoError(f.t, json.Unmarshal([]byte(out), &p))
	return p
}

func TestChaincodeRegistersTransactions(t *testing.T) {
	_, err := contractapi.NewChaincode(&SupplyChainContract{})
	require.NoError(t, err)
}

func TestCreateProductThroughStub(t *testing.T) {
	f := newFixture(t)

	p := f.createProduct("B1")
	assert.Equal(t, uint64(1), p.ID)
	assert.Equal(t, makerMSP, p.Owner)
	assert.Equal(t, "10.5", p.Price.String())
	assert.Equal(t, []string{"created by " + makerMSP}, p.History.Entries())
	assert.Equal(t, start, p.CreatedAt)

	ev := <-f.stub.ChaincodeEventsChannel
	assert.Equal(t, ledger.EventProductCreated, ev.EventName)
	var events []ledger.Event
	require.NoError(t, json.Unmarshal(ev.Payload, &events))
	require.Len(t, events, 2)
	assert.Equal(t, ledger.EventLocationUpdated, events[1].Name)
	assert.Empty(t, f.drainEvents())

	out, err := f.cc.GetProduct(f.as(retailerMSP), 1)
	require.NoError(t, err)
	var stored ledger.Product
	require.NoError(t, json.Unmarshal([]byte(out), &stored))
	assert.Equal(t, p.ContentHash, stored.ContentHash)

	used, err := f.cc.IsHashUsed(f.as(retailerMSP), p.ContentHash)
	require.NoError(t, err)
	assert.True(t, used)

	owned, err := f.cc.GetOwnedProducts(f.as(retailerMSP), makerMSP)
	require.NoError(t, err)
	assert.JSONEq(t, `[1]`, owned)
}

func TestRejectedTransactionWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.createProduct("B1")
	f.drainEvents()
	keys := len(f.stub.State)

	_, err := f.cc.CreateProduct(f.as(makerMSP), "Widget", "", "10", "B1",
		f.now.Format(time.RFC3339), f.now.Add(time.Hour).Format(time.RFC3339), rotterdam)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInvalidBatchNumber)
	assert.Contains(t, err.Error(), "InvalidBatchNumber:")

	_, err = f.cc.CreateProduct(f.as(makerMSP), "Widget", "", "0.5", "B2",
		f.now.Format(time.RFC3339), f.now.Add(time.Hour).Format(time.RFC3339), rotterdam)
	assert.ErrorIs(t, err, ledger.ErrInvalidPrice)

	assert.Len(t, f.stub.State, keys)
	assert.Empty(t, f.drainEvents())
	count, err := f.cc.GetProductCount(f.as(makerMSP))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestCreateProductRejectsMalformedArguments(t *testing.T) {
	f := newFixture(t)
	mfg := f.now.Format(time.RFC3339)
	exp := f.now.Add(time.Hour).Format(time.RFC3339)

	tests := []struct {
		name                         string
		price, mfg, expiry, location string
		want                         error
	}{
		{"price not a number", "ten", mfg, exp, rotterdam, ledger.ErrInvalidPrice},
		{"date not RFC3339", "10", "01/03/2026", exp, rotterdam, ledger.ErrInvalidTimeRange},
		{"location not JSON", "10", mfg, exp, "Rotterdam", ledger.ErrInvalidLocation},
		{"location without country", "10", mfg, exp, `{"facilityName":"Rotterdam DC"}`, ledger.ErrInvalidLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cc.CreateProduct(f.as(makerMSP), "Widget", "", tt.price, "B1", tt.mfg, tt.expiry, tt.location)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMalformedArgumentsDoNotMaskPauseOrRole(t *testing.T) {
	f := newFixture(t)
	mfg := f.now.Format(time.RFC3339)
	exp := f.now.Add(time.Hour).Format(time.RFC3339)

	require.NoError(t, f.cc.Pause(f.as(adminMSP)))
	_, err := f.cc.CreateProduct(f.as(retailerMSP), "Widget", "", "ten", "B1", mfg, exp, rotterdam)
	assert.ErrorIs(t, err, ledger.ErrPaused)
	assert.Contains(t, err.Error(), "Paused:")
	_, err = f.cc.UpdateProductStatus(f.as(makerMSP), 1, "STORED", "not-json")
	assert.ErrorIs(t, err, ledger.ErrPaused)
	_, err = f.cc.CreateShipment(f.as(carrierMSP), "not-json", retailerMSP, rotterdam, rotterdam)
	assert.ErrorIs(t, err, ledger.ErrPaused)
	_, err = f.cc.UpdateShipmentStatus(f.as(carrierMSP), 1, "DELAYED", "not-json")
	assert.ErrorIs(t, err, ledger.ErrPaused)
	_, err = f.cc.PerformQualityCheck(f.as(inspectorMSP), 1, "PASSED", "", "not-json", "")
	assert.ErrorIs(t, err, ledger.ErrPaused)
	require.NoError(t, f.cc.Unpause(f.as(adminMSP)))

	_, err = f.cc.CreateProduct(f.as(retailerMSP), "Widget", "", "ten", "B1", mfg, exp, rotterdam)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = f.cc.CreateShipment(f.as(retailerMSP), "not-json", retailerMSP, rotterdam, rotterdam)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = f.cc.CreateProduct(f.as(makerMSP), "Widget", "", "ten", "B1", mfg, exp, rotterdam)
	assert.ErrorIs(t, err, ledger.ErrInvalidPrice)
	_, err = f.cc.CreateShipment(f.as(carrierMSP), "not-json", retailerMSP, rotterdam, rotterdam)
	assert.ErrorIs(t, err, ledger.ErrInvalidParameter)
}

func TestShipmentThroughStub(t *testing.T) {
	f := newFixture(t)
	f.createProduct("B1")
	f.drainEvents()

	out, err := f.cc.CreateShipment(f.as(carrierMSP), `[1]`, retailerMSP, rotterdam, rotterdam)
	require.NoError(t, err)
	var sh ledger.Shipment
	require.NoError(t, json.Unmarshal([]byte(out), &sh))
	assert.Equal(t, uint64(1), sh.ID)
	assert.Equal(t, ledger.ShipmentStatusPending, sh.Status)
	assert.Equal(t, []string{ledger.EventShipmentCreated}, f.drainEvents())

	f.now = f.now.Add(6 * time.Hour)
	out, err = f.cc.UpdateShipmentStatus(f.as(retailerMSP), sh.ID, "DELIVERED", rotterdam)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &sh))
	require.NotNil(t, sh.DeliveredAt)
	assert.Equal(t, f.now, *sh.DeliveredAt)

	points, err := f.cc.GetShipmentTransitPoints(f.as(retailerMSP), sh.ID)
	require.NoError(t, err)
	var locs []ledger.Location
	require.NoError(t, json.Unmarshal([]byte(points), &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, "Rotterdam DC", locs[0].FacilityName)

	_, err = f.cc.UpdateShipmentStatus(f.as(makerMSP), sh.ID, "DELAYED", rotterdam)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = f.cc.CreateShipment(f.as(carrierMSP), `[1,`, retailerMSP, rotterdam, rotterdam)
	assert.ErrorIs(t, err, ledger.ErrInvalidParameter)
}

func TestQualityCheckThroughStub(t *testing.T) {
	f := newFixture(t)
	p := f.createProduct("B1")

	out, err := f.cc.PerformQualityCheck(f.as(inspectorMSP), p.ID, "FAILED", "seal broken",
		`["temperature"]`, `["9C"]`)
	require.NoError(t, err)
	var check ledger.QualityCheck
	require.NoError(t, json.Unmarshal([]byte(out), &check))
	assert.Equal(t, ledger.QualityStatusFailed, check.Status)

	_, err = f.cc.PerformQualityCheck(f.as(inspectorMSP), p.ID, "PASSED", "", `["a","b"]`, `["1"]`)
	assert.ErrorIs(t, err, ledger.ErrInvalidParameter)

	_, err = f.cc.PerformQualityCheck(f.as(inspectorMSP), p.ID, "PASSED", "visual only", "", "")
	require.NoError(t, err)

	checks, err := f.cc.GetQualityChecks(f.as(retailerMSP), p.ID)
	require.NoError(t, err)
	var list []ledger.QualityCheck
	require.NoError(t, json.Unmarshal([]byte(checks), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "seal broken", list[0].Notes)

	product, err := f.cc.GetProduct(f.as(retailerMSP), p.ID)
	require.NoError(t, err)
	var stored ledger.Product
	require.NoError(t, json.Unmarshal([]byte(product), &stored))
	assert.Equal(t, ledger.QualityStatusPassed, stored.QualityStatus)
}

func TestRecallAndCertificationThroughStub(t *testing.T) {
	f := newFixture(t)
	p := f.createProduct("B1")

	require.NoError(t, f.cc.AddCertification(f.as(adminMSP), p.ID, "ISO 9001"))
	require.NoError(t, f.cc.RecallProduct(f.as(makerMSP), p.ID, "contamination"))

	out, err := f.cc.GetProduct(f.as(retailerMSP), p.ID)
	require.NoError(t, err)
	var stored ledger.Product
	require.NoError(t, json.Unmarshal([]byte(out), &stored))
	assert.Equal(t, ledger.ProductStatusRecalled, stored.Status)
	assert.Equal(t, []string{"ISO 9001"}, stored.Certifications)
	assert.Equal(t, "Recalled: contamination", stored.History.Entries()[1])

	_, err = f.cc.UpdateProductStatus(f.as(makerMSP), p.ID, "STORED", rotterdam)
	assert.ErrorIs(t, err, ledger.ErrInvalidStatus)

	used, err := f.cc.IsBatchNumberUsed(f.as(retailerMSP), "B1")
	require.NoError(t, err)
	assert.True(t, used)
}

func TestGetEventsThroughStub(t *testing.T) {
	f := newFixture(t)
	f.createProduct("B1")

	txID := fmt.Sprintf("tx%d", f.txs)

	out, err := f.cc.GetEvents(f.as(retailerMSP), txID)
	require.NoError(t, err)
	var events []ledger.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 2)
	assert.Equal(t, ledger.EventProductCreated, events[0].Name)
	assert.Equal(t, txID, events[0].TxID)
	assert.Equal(t, 1, events[1].Index)

	out, err = f.cc.GetEvents(f.as(retailerMSP), "tx-unknown")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestEventKeysAreScopedToTransaction(t *testing.T) {
	f := newFixture(t)
	f.createProduct("B1")
	first := fmt.Sprintf("tx%d", f.txs)
	f.createProduct("B2")
	second := fmt.Sprintf("tx%d", f.txs)

	var eventKeys []string
	for key := range f.stub.State {
		if strings.HasPrefix(key, "event_") {
			eventKeys = append(eventKeys, key)
		}
	}
	assert.Contains(t, eventKeys, "event_"+first+"_0000")
	assert.Contains(t, eventKeys, "event_"+second+"_0001")
	for _, key := range eventKeys {
		assert.Regexp(t, `^event_tx\d+_\d{4}$`, key)
	}
}
