package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/signalfire/content-compliance/internal/domain/compliance"
)

// newValidator создаёт валидатор с доменными правилами.
// В сообщениях об ошибках используются имена полей из json-тегов.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("frequency", validateFrequency)
	_ = v.RegisterValidation("non_response_action", validateNonResponseAction)
	return v
}

func validateFrequency(fl validator.FieldLevel) bool {
	return compliance.Frequency(fl.Field().String()).Valid()
}

func validateNonResponseAction(fl validator.FieldLevel) bool {
	return compliance.NonResponseAction(fl.Field().String()).Valid()
}

// validationError превращает ошибку валидатора в ErrValidation с перечнем полей.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: нарушено правило %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}
