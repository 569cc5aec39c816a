package shared

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidateStruct runs validator tags over req and folds the first failure
// into the ValidationError taxonomy.
func ValidateStruct(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return NewValidationError(strings.ToLower(fe.Field()), "fails rule "+fe.Tag())
	}
	return NewValidationError("", err.Error())
}
