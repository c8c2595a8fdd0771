package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	admin     = "AdminMSP"
	maker     = "ManufacturerMSP"
	carrier   = "DistributorMSP"
	receiver  = "RetailerMSP"
	inspector = "InspectorMSP"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func at(caller string, offset time.Duration) Call {
	return Call{Caller: caller, Now: t0.Add(offset)}
}

func warehouse() Location {
	return Location{
		FacilityName: "Rotterdam DC",
		Country:      "NL",
		Region:       "South Holland",
		Latitude:     51_924_420,
		Longitude:    4_477_733,
	}
}

func widget(batch string) CreateProductInput {
	return CreateProductInput{
		Name:              "Widget",
		Description:       "steel widget",
		Price:             decimal.NewFromInt(10),
		BatchNumber:       batch,
		ManufacturingDate: t0,
		ExpiryDate:        t0.Add(100 * time.Hour),
		Location:          warehouse(),
	}
}

// newTestEngine returns an initialized engine whose admin has granted the
// manufacturer, distributor, retailer and inspector roles.
func newTestEngine(t *testing.T, opts ...Option) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(quietLogger())
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	e := NewEngine(store, opts...)
	seedRoles(t, e)
	return e, store
}

func seedRoles(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.Initialize(ctx, at(admin, 0)))
	require.NoError(t, e.GrantRole(ctx, at(admin, 0), maker, RoleManufacturer))
	require.NoError(t, e.GrantRole(ctx, at(admin, 0), carrier, RoleDistributor))
	require.NoError(t, e.GrantRole(ctx, at(admin, 0), receiver, RoleRetailer))
	require.NoError(t, e.GrantRole(ctx, at(admin, 0), inspector, RoleQualityInspector))
}

func mustCreateProduct(t *testing.T, e *Engine, batch string) *Product {
	t.Helper()
	p, err := e.CreateProduct(context.Background(), at(maker, 0), widget(batch))
	require.NoError(t, err)
	return p
}
