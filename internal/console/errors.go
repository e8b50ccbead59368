package console

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"calendar-console/internal/backend"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrUnavailable = errors.New("action not available")
	ErrNotFound    = errors.New("booking not found")
	// ErrDeclined means the collaborator answered a charge with success=false.
	ErrDeclined = errors.New("charge declined")
)

// ActionError is a failed staff action. Alert is the text shown to staff.
type ActionError struct {
	Alert string
	Err   error
}

func (e *ActionError) Error() string { return e.Alert }
func (e *ActionError) Unwrap() error { return e.Err }

// UserMessage builds alert text from the server's message when there is one,
// otherwise from the error itself.
func UserMessage(prefix string, err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Message != "" {
		return prefix + ": " + be.Message
	}
	return prefix + ": " + err.Error()
}

func fail(prefix string, err error) error {
	return &ActionError{Alert: UserMessage(prefix, err), Err: err}
}

// verbatim shows the server's message as is, or fallback when the server sent
// none. Transport errors keep their own text.
func verbatim(err error, fallback string) error {
	alert := err.Error()
	var be *backend.Error
	if errors.As(err, &be) {
		alert = be.Message
		if alert == "" {
			alert = fallback
		}
	}
	return &ActionError{Alert: alert, Err: err}
}

func invalid(msg string) error {
	return &ActionError{Alert: msg, Err: ErrValidation}
}

// formError turns validator output into a single alert listing the fields.
func formError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalid(err.Error())
	}
	var required, malformed []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			required = append(required, fe.Field())
		} else {
			malformed = append(malformed, fe.Field())
		}
	}
	var parts []string
	if len(required) > 0 {
		parts = append(parts, "Please fill in all required fields: "+strings.Join(required, ", "))
	}
	if len(malformed) > 0 {
		parts = append(parts, "Invalid value for: "+strings.Join(malformed, ", "))
	}
	return invalid(strings.Join(parts, ". "))
}

func notFound() error {
	return &ActionError{Alert: "Appointment not found", Err: ErrNotFound}
}
