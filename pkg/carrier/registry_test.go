package carrier_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/tournevent/labeler/pkg/carrier/mock"
)

func TestRegistry_Resolve(t *testing.T) {
	registry := carrier.NewRegistry()
	registry.Register(carrier.GLS, mock.New(carrier.GLS).Constructor())

	got, err := registry.Resolve(carrier.GLS, carrier.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, carrier.GLS, got.Code())
}

func TestRegistry_Resolve_Unknown(t *testing.T) {
	registry := carrier.NewRegistry()

	_, err := registry.Resolve("UPS", carrier.Credentials{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, carrier.ErrUnknownCarrier))
	assert.False(t, errors.Is(err, carrier.ErrNotImplemented))
}

func TestRegistry_Resolve_NotImplemented(t *testing.T) {
	registry := carrier.NewRegistry()
	registry.Register(carrier.Bring, nil)

	_, err := registry.Resolve(carrier.Bring, carrier.Credentials{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, carrier.ErrNotImplemented))
	assert.False(t, errors.Is(err, carrier.ErrUnknownCarrier))
}

func TestRegistry_Resolve_ConstructionError(t *testing.T) {
	cause := errors.New("customer id is required")
	registry := carrier.NewRegistry()
	registry.Register(carrier.GLS, func(carrier.Credentials) (carrier.Adapter, error) {
		return nil, cause
	})

	_, err := registry.Resolve(carrier.GLS, carrier.Credentials{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, carrier.ErrAdapterConstruction))
	assert.True(t, errors.Is(err, cause))
}

func TestRegistry_Resolve_ConstructsEachTime(t *testing.T) {
	var built int
	registry := carrier.NewRegistry()
	registry.Register(carrier.GLS, func(carrier.Credentials) (carrier.Adapter, error) {
		built++
		return mock.New(carrier.GLS), nil
	})

	_, err := registry.Resolve(carrier.GLS, carrier.Credentials{})
	require.NoError(t, err)
	_, err = registry.Resolve(carrier.GLS, carrier.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, 2, built)
}

func TestRegistry_Codes(t *testing.T) {
	registry := carrier.NewRegistry()
	registry.Register(carrier.Shipmondo, mock.New(carrier.Shipmondo).Constructor())
	registry.Register(carrier.GLS, mock.New(carrier.GLS).Constructor())
	registry.Register(carrier.DAO, nil)

	assert.Equal(t, []carrier.Code{carrier.DAO, carrier.GLS, carrier.Shipmondo}, registry.Codes())
	assert.Equal(t, 3, registry.Count())
	assert.True(t, registry.Known(carrier.DAO))
	assert.False(t, registry.Implemented(carrier.DAO))
	assert.True(t, registry.Implemented(carrier.GLS))
}

func TestRegistry_Register_Override(t *testing.T) {
	registry := carrier.NewRegistry()
	registry.Register(carrier.GLS, nil)
	assert.False(t, registry.Implemented(carrier.GLS))

	registry.Register(carrier.GLS, mock.New(carrier.GLS).Constructor())
	assert.True(t, registry.Implemented(carrier.GLS))
	assert.Equal(t, 1, registry.Count())
}

func TestParseCode(t *testing.T) {
	code, ok := carrier.ParseCode("GLS")
	assert.True(t, ok)
	assert.Equal(t, carrier.GLS, code)

	_, ok = carrier.ParseCode("gls")
	assert.False(t, ok)
}
