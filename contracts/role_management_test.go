package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provenance-supply-chain/chaincode/supply-chain/ledger"
)

func TestInitLedgerOnlyOnce(t *testing.T) {
	f := newFixture(t)

	err := f.cc.InitLedger(f.as(makerMSP))
	assert.ErrorIs(t, err, ledger.ErrAlreadyInitialized)
	assert.Contains(t, err.Error(), "AlreadyInitialized:")
}

func TestRoleTransactions(t *testing.T) {
	f := newFixture(t)

	roles, err := f.cc.GetRoles(f.as(retailerMSP), makerMSP)
	require.NoError(t, err)
	assert.JSONEq(t, `["MANUFACTURER"]`, roles)

	require.NoError(t, f.cc.GrantRole(f.as(adminMSP), makerMSP, "distributor"))
	ok, err := f.cc.HasRole(f.as(retailerMSP), makerMSP, "DISTRIBUTOR")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{ledger.EventRoleGranted}, f.drainEvents())

	require.NoError(t, f.cc.RevokeRole(f.as(adminMSP), makerMSP, "DISTRIBUTOR"))
	ok, err = f.cc.HasRole(f.as(retailerMSP), makerMSP, "DISTRIBUTOR")
	require.NoError(t, err)
	assert.False(t, ok)

	err = f.cc.GrantRole(f.as(makerMSP), retailerMSP, "ADMIN")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = f.cc.HasRole(f.as(retailerMSP), makerMSP, "OWNER")
	assert.ErrorIs(t, err, ledger.ErrInvalidRole)
	err = f.cc.RevokeRole(f.as(adminMSP), adminMSP, "ADMIN")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestPauseTransactions(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.cc.Pause(f.as(adminMSP)))
	paused, err := f.cc.IsPaused(f.as(retailerMSP))
	require.NoError(t, err)
	assert.True(t, paused)
	assert.Equal(t, []string{ledger.EventPaused}, f.drainEvents())

	_, err = f.cc.CreateProduct(f.as(makerMSP), "Widget", "", "10", "B1",
		start.Format(time.RFC3339), start.Add(time.Hour).Format(time.RFC3339), rotterdam)
	assert.ErrorIs(t, err, ledger.ErrPaused)
	assert.Contains(t, err.Error(), "Paused:")

	assert.ErrorIs(t, f.cc.Pause(f.as(adminMSP)), ledger.ErrPaused)
	require.NoError(t, f.cc.Unpause(f.as(adminMSP)))
	assert.ErrorIs(t, f.cc.Unpause(f.as(adminMSP)), ledger.ErrNotPaused)

	f.createProduct("B1")
}
