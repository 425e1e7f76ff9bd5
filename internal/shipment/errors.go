package shipment

import (
	"github.com/cockroachdb/errors"
)

// Error markers. Match them with errors.Is from github.com/cockroachdb/errors.
var (
	// ErrConfiguration means the tenant must fix its settings. The message is shown verbatim.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation means the request input is invalid. The message is shown verbatim.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState means the shipment cannot take the requested action in its current status.
	ErrInvalidState = errors.New("invalid shipment state")

	// ErrShipmentNotFound means the shipment does not exist for the tenant.
	ErrShipmentNotFound = errors.New("shipment not found")

	// ErrLabelFailed means the carrier could not create the label. The shipment is stored as FAILED.
	ErrLabelFailed = errors.New("failed to create label")

	// ErrLabelNotAvailable means no label is stored and the carrier cannot re-download it.
	ErrLabelNotAvailable = errors.New("label not available")
)

func configurationError(msg string) error {
	return errors.Mark(errors.New(msg), ErrConfiguration)
}

func validationError(msg string) error {
	return errors.Mark(errors.New(msg), ErrValidation)
}

func invalidState(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidState)
}
