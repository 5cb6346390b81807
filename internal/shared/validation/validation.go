// Package validation builds the single *validator.Validate instance
// every controller uses, registering the two domain regexes §6 pins:
// alphanumeric ids and the "letters, digits, spaces" shape shared by
// conference names, locations, and topics.
package validation

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	alnumRe    = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	confnameRe = regexp.MustCompile(`^[A-Za-z0-9 ]+$`)

	once     sync.Once
	instance *validator.Validate
)

// New returns the shared *validator.Validate with the "alnum" and
// "confname" tags registered.
func New() *validator.Validate {
	once.Do(func() {
		instance = validator.New()
		_ = instance.RegisterValidation("alnum", func(fl validator.FieldLevel) bool {
			return alnumRe.MatchString(fl.Field().String())
		})
		_ = instance.RegisterValidation("confname", func(fl validator.FieldLevel) bool {
			return confnameRe.MatchString(fl.Field().String())
		})
	})
	return instance
}
