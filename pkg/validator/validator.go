// pkg/validator/validator.go
package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/formhive/webhook-service/internal/triggers"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// GetValidator returns a singleton validator instance with all custom rules registered
func GetValidator() *validator.Validate {
	once.Do(func() {
		v := validator.New()

		// "eventtype" accepts only the closed trigger vocabulary
		v.RegisterValidation("eventtype", func(fl validator.FieldLevel) bool {
			return triggers.IsValidEventType(fl.Field().String())
		})

		validate = v
	})
	return validate
}
