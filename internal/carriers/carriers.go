// Package carriers wires every carrier code to its adapter constructor.
package carriers

import (
	"time"

	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/tournevent/labeler/pkg/carrier/gls"
	"github.com/tournevent/labeler/pkg/carrier/shipmondo"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
)

// Options configures adapter construction.
type Options struct {
	Timeout       time.Duration
	UseMock       bool
	PickupCarrier string
}

// Table returns the constructor for every known carrier code.
// A nil constructor marks a carrier that is recognized but has no adapter yet.
func Table(opts Options, logger *otelzap.Logger, tracer trace.Tracer) map[carrier.Code]carrier.Constructor {
	return map[carrier.Code]carrier.Constructor{
		carrier.GLS: func(creds carrier.Credentials) (carrier.Adapter, error) {
			a, err := gls.New(gls.Config{
				Credentials: creds,
				Timeout:     opts.Timeout,
				UseMock:     opts.UseMock,
			}, logger, tracer)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		carrier.Shipmondo: func(creds carrier.Credentials) (carrier.Adapter, error) {
			a, err := shipmondo.New(shipmondo.Config{
				Credentials:   creds,
				Timeout:       opts.Timeout,
				PickupCarrier: opts.PickupCarrier,
				UseMock:       opts.UseMock,
			}, logger, tracer)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		carrier.PostNord: nil,
		carrier.DAO:      nil,
		carrier.Bring:    nil,
	}
}

// NewRegistry builds a registry holding the full carrier table.
func NewRegistry(opts Options, logger *otelzap.Logger, tracer trace.Tracer) *carrier.Registry {
	registry := carrier.NewRegistry()
	for code, ctor := range Table(opts, logger, tracer) {
		registry.Register(code, ctor)
	}
	return registry
}
