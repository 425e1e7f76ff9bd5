package shipment

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/tournevent/labeler/pkg/carrier"
)

// Defaults applied to create requests.
const (
	DefaultCountry  = "DK"
	DefaultWeightKg = 1.0
)

// Recipient is the delivery address of a create request.
type Recipient struct {
	Name    string `json:"name" validate:"required,max=100"`
	Street  string `json:"street" validate:"required,max=200"`
	Zip     string `json:"zip" validate:"required,max=20"`
	City    string `json:"city" validate:"required,max=100"`
	Country string `json:"country" validate:"omitempty,len=2,uppercase"`
	Phone   string `json:"phone" validate:"omitempty,max=30"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// CreateInput is a label request.
type CreateInput struct {
	Carrier       carrier.Code `json:"carrier"`
	Product       string       `json:"product" validate:"required"`
	Recipient     Recipient    `json:"recipient"`
	WeightKg      float64      `json:"weightKg" validate:"gte=0,lte=70"`
	LengthCm      float64      `json:"lengthCm" validate:"gte=0,lte=300"`
	WidthCm       float64      `json:"widthCm" validate:"gte=0,lte=300"`
	HeightCm      float64      `json:"heightCm" validate:"gte=0,lte=300"`
	PickupPointID string       `json:"pickupPointId" validate:"max=64"`
	Reference     string       `json:"reference" validate:"max=64"`
}

func (in *CreateInput) applyDefaults() {
	if in.Recipient.Country == "" {
		in.Recipient.Country = DefaultCountry
	}
	if in.WeightKg == 0 {
		in.WeightKg = DefaultWeightKg
	}
}

func (r Recipient) address() carrier.Address {
	return carrier.Address{
		Name:    r.Name,
		Street:  r.Street,
		Zip:     r.Zip,
		City:    r.City,
		Country: r.Country,
		Phone:   r.Phone,
		Email:   r.Email,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput reports every failing field as one validation error.
func validateInput(v *validator.Validate, in CreateInput) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "validating input")
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "CreateInput.")
		if fe.Param() != "" {
			msgs = append(msgs, field+" failed "+fe.Tag()+"="+fe.Param())
			continue
		}
		msgs = append(msgs, field+" failed "+fe.Tag())
	}
	return validationError("invalid input: " + strings.Join(msgs, ", "))
}
