// Package validation implements server-side schema validation for waitlist
// submissions. The client mirrors these rules for fast feedback, but the
// server copy is authoritative: nothing reaches the rate limiter or the
// webhook dispatcher without passing here first.
//
// Validation is fail-fast: the first violated rule wins, and the error names
// the offending field with a message safe to surface to the caller.
package validation

import (
	"errors"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-waitlist-backend/internal/domain"
)

// Cities is the launch-city enumeration accepted on signup. The set is part
// of the public form contract; extend it here when a new city opens.
var Cities = []string{"Hyderabad", "Bangalore", "Mumbai", "Delhi", "Chennai"}

// UserTypes enumerates the two sides of the marketplace.
var UserTypes = []string{"customer", "maker"}

// SubmissionRequest is the normalized, validated signup payload. The JSON
// field names are a stable contract shared with the front end and the
// downstream spreadsheet webhook; do not rename them.
type SubmissionRequest struct {
	FullName     string `json:"fullName"     validate:"required,max=100"`
	EmailAddress string `json:"emailAddress" validate:"required,email,max=255"`
	PhoneNumber  string `json:"phoneNumber"  validate:"required,min=10,max=15"`
	City         string `json:"city"         validate:"required,oneof=Hyderabad Bangalore Mumbai Delhi Chennai"`
	UserType     string `json:"userType"     validate:"required,oneof=customer maker"`
}

// FieldError reports the first field that failed validation together with a
// human-readable message. It is safe to return verbatim to the caller.
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// fieldMessages maps (json field, failed tag) to the message shown to users.
// Unknown combinations fall back to a generic per-field message.
var fieldMessages = map[string]map[string]string{
	"fullName": {
		"required": "Full name is required",
		"max":      "Name must be less than 100 characters",
	},
	"emailAddress": {
		"required": "Email is required",
		"email":    "Please enter a valid email",
		"max":      "Email must be less than 255 characters",
	},
	"phoneNumber": {
		"required": "Phone number is required",
		"min":      "Please enter a valid phone number",
		"max":      "Phone number must be less than 15 characters",
	},
	"city": {
		"required": "Please select a city",
		"oneof":    "Please select a supported city",
	},
	"userType": {
		"required": "Please select your role",
		"oneof":    "Role must be customer or maker",
	},
}

// Validator validates and normalizes raw submissions. Construct with New and
// share one instance; the underlying validator caches struct metadata and is
// safe for concurrent use.
type Validator struct {
	v         *validatorv10.Validate
	cityTitle cases.Caser
}

// New returns a configured Validator. Field names in errors are taken from
// the json tag so callers see the wire-level name, not the Go identifier.
func New() *Validator {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{
		v:         v,
		cityTitle: cases.Title(language.English),
	}
}

// Validate normalizes raw in place and checks it against the submission
// schema. On success the returned request equals the input modulo whitespace
// trimming, email lowercasing, and city title-casing. On failure it returns a
// *FieldError naming the first offending field.
func (sv *Validator) Validate(raw SubmissionRequest) (SubmissionRequest, error) {
	req := sv.normalize(raw)

	if err := sv.v.Struct(req); err != nil {
		var verrs validatorv10.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			// Fields validate in declaration order; report the first.
			fe := verrs[0]
			return req, &FieldError{Field: fe.Field(), Message: messageFor(fe.Field(), fe.Tag())}
		}
		return req, &FieldError{Field: "body", Message: "invalid submission"}
	}
	return req, nil
}

// normalize trims every field, lowercases the email, and title-cases the city
// so "mumbai" matches the enumerated form.
func (sv *Validator) normalize(raw SubmissionRequest) SubmissionRequest {
	return SubmissionRequest{
		FullName:     strings.TrimSpace(raw.FullName),
		EmailAddress: domain.NormalizeEmail(raw.EmailAddress),
		PhoneNumber:  strings.TrimSpace(raw.PhoneNumber),
		City:         sv.cityTitle.String(strings.ToLower(strings.TrimSpace(raw.City))),
		UserType:     strings.ToLower(strings.TrimSpace(raw.UserType)),
	}
}

func messageFor(field, tag string) string {
	if tags, ok := fieldMessages[field]; ok {
		if msg, ok := tags[tag]; ok {
			return msg
		}
	}
	return "invalid value for " + field
}
