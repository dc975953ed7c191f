package handler

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/shopspring/decimal"
)

// RequestValidator plugs go-playground/validator into echo's Validate hook.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()

	// Decimals are checked by sign only, so a float view is precise enough.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("crop_type", func(fl validator.FieldLevel) bool {
		return domain.CropType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("disposal_method", func(fl validator.FieldLevel) bool {
		return domain.DisposalMethod(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("decision", func(fl validator.FieldLevel) bool {
		s := domain.VerificationStatus(fl.Field().String())
		return s == domain.VerificationApproved || s == domain.VerificationRejected
	})

	return &RequestValidator{validate: v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	if err := rv.validate.Struct(i); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	return nil
}
