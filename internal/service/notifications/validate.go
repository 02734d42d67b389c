package notifications

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/agora-server/internal/core"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("entity_kind", func(fl validator.FieldLevel) bool {
		_, ok := ParseEntityKind(fl.Field().String())
		return ok
	})
	return v
}

// validationError turns validator output into a ValidationError naming each bad field.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return core.Validation(core.ErrCodeBadRequest, err.Error())
	}

	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required", "required_with":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "entity_kind":
			parts = append(parts, fmt.Sprintf("%s %q is not a known entity type", fe.Field(), fe.Value()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
	}
	return core.Validation(core.ErrCodeBadRequest, strings.Join(parts, "; "))
}
