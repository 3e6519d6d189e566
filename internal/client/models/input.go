package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput wraps every validation failure of user-submitted data.
var ErrInvalidInput = errors.New("invalid input")

var validate = validator.New()

// ProfileInput is what the profile completion form submits.
type ProfileInput struct {
	FirstName string `validate:"required,max=100"`
	LastName  string `validate:"required,max=100"`
}

// Normalize trims surrounding whitespace from every field.
func (in ProfileInput) Normalize() ProfileInput {
	return ProfileInput{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}
}

// Validate checks the normalized input. The returned error wraps
// ErrInvalidInput and names the offending fields.
func (in ProfileInput) Validate() error {
	err := validate.Struct(in.Normalize())
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
}
