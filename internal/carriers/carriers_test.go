package carriers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/internal/carriers"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newRegistry() *carrier.Registry {
	return carriers.NewRegistry(carriers.Options{UseMock: true}, otelzap.New(zap.NewNop()), nil)
}

func TestTable_CoversEveryCode(t *testing.T) {
	table := carriers.Table(carriers.Options{}, otelzap.New(zap.NewNop()), nil)

	for _, code := range carrier.Codes() {
		_, ok := table[code]
		assert.True(t, ok, "carrier %s has no table entry", code)
	}
	assert.Len(t, table, len(carrier.Codes()))
}

func TestRegistry_ResolveImplemented(t *testing.T) {
	registry := newRegistry()

	adapter, err := registry.Resolve(carrier.GLS, carrier.Credentials{CustomerID: "2080060960", APIUser: "user", APIKey: "secret"})
	require.NoError(t, err)
	assert.Equal(t, carrier.GLS, adapter.Code())

	adapter, err = registry.Resolve(carrier.Shipmondo, carrier.Credentials{APIUser: "user", APIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, carrier.Shipmondo, adapter.Code())
	_, ok := adapter.(carrier.LabelFetcher)
	assert.True(t, ok)
}

func TestRegistry_NotImplemented(t *testing.T) {
	registry := newRegistry()

	for _, code := range []carrier.Code{carrier.PostNord, carrier.DAO, carrier.Bring} {
		_, err := registry.Resolve(code, carrier.Credentials{})
		assert.ErrorIs(t, err, carrier.ErrNotImplemented, code)
		assert.NotErrorIs(t, err, carrier.ErrUnknownCarrier)
		assert.False(t, registry.Implemented(code))
		assert.True(t, registry.Known(code))
	}
}

func TestRegistry_MissingCredentials(t *testing.T) {
	registry := newRegistry()

	_, err := registry.Resolve(carrier.GLS, carrier.Credentials{APIUser: "user"})
	assert.ErrorIs(t, err, carrier.ErrAdapterConstruction)
	assert.Contains(t, err.Error(), "customer id is required")

	_, err = registry.Resolve(carrier.Shipmondo, carrier.Credentials{})
	assert.ErrorIs(t, err, carrier.ErrAdapterConstruction)
}

func TestRegistry_Unknown(t *testing.T) {
	_, err := newRegistry().Resolve(carrier.Code("UPS"), carrier.Credentials{})
	assert.ErrorIs(t, err, carrier.ErrUnknownCarrier)
}
