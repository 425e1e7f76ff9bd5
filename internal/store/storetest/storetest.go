// Package storetest opens migrated in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/internal/secrets"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Key is the encryption key used by test stores.
const Key = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// Open returns a migrated sqlite store closed at the end of the test.
func Open(t testing.TB) *store.Store {
	t.Helper()

	box, err := secrets.NewBox(Key)
	require.NoError(t, err)

	s, err := store.Open(context.Background(), store.Config{
		Driver: store.DriverSQLite,
		DSN:    ":memory:",
	}, box, otelzap.New(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// Sender is a complete sender address.
var Sender = carrier.Address{
	Name:    "Nordic Webshop ApS",
	Street:  "Lagervej 12",
	Zip:     "2600",
	City:    "Glostrup",
	Country: "DK",
	Phone:   "+4570203040",
	Email:   "lager@nordicwebshop.dk",
}

// Tenant creates a tenant with a complete sender address and GLS credentials.
// Options adjust the input before it is written.
func Tenant(t testing.TB, s *store.Store, opts ...func(*store.TenantInput)) *store.Tenant {
	t.Helper()

	in := store.TenantInput{
		ShopDomain: "nordic-webshop.myshopify.com",
		Sender:     Sender,
		Credentials: map[carrier.Code]carrier.Credentials{
			carrier.GLS: {CustomerID: "2080060960", APIUser: "2080060960", APIKey: "API1234"},
		},
		DefaultCarrier: carrier.GLS,
	}
	for _, opt := range opts {
		opt(&in)
	}

	tenant, err := s.UpsertTenant(context.Background(), in)
	require.NoError(t, err)
	return tenant
}

// UseFreeLabels consumes n free labels of the tenant.
func UseFreeLabels(t testing.TB, s *store.Store, tenantID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, _, ok, err := s.IncrementFreeLabels(context.Background(), tenantID)
		require.NoError(t, err)
		require.True(t, ok)
	}
}
