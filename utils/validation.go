package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// DocumentNumberPattern is the PAN layout: 5 letters, 4 digits, 1 letter.
var DocumentNumberPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

const (
	DocumentNumberLength = 10
	AddressMinLength     = 10
	AddressMaxLength     = 500
	EmailMaxLength       = 255
	PasswordMinLength    = 6
	PasswordMaxLength    = 128
	NotesMaxLength       = 2000
	ReasonMaxLength      = 1000
)

const (
	MsgDocumentNumberRequired = "PAN number is required"
	MsgDocumentNumberLength   = "PAN number must be exactly 10 characters"
	MsgDocumentNumberFormat   = "Invalid PAN format. Must be 5 letters, 4 digits, 1 letter (e.g., ABCDE1234F)"
	MsgAddressRequired        = "Address is required"
	MsgAddressTooShort        = "Address must be at least 10 characters"
	MsgAddressTooLong         = "Address must be less than 500 characters"
	MsgAddressInvalidChars    = "Address contains invalid characters"
)

// ValidationResult is either Valid with a normalized Value, or invalid with a
// human readable Reason.
type ValidationResult struct {
	Valid  bool
	Value  string
	Reason string
}

func valid(v string) ValidationResult       { return ValidationResult{Valid: true, Value: v} }
func invalid(reason string) ValidationResult { return ValidationResult{Reason: reason} }

var fieldValidator = validator.New()

// ValidateDocumentNumber uppercases and trims the candidate, then checks
// emptiness, length and pattern in that order.
func ValidateDocumentNumber(value string) ValidationResult {
	v := strings.ToUpper(strings.TrimSpace(value))
	switch {
	case v == "":
		return invalid(MsgDocumentNumberRequired)
	case utf8.RuneCountInString(v) != DocumentNumberLength:
		return invalid(MsgDocumentNumberLength)
	case !DocumentNumberPattern.MatchString(v):
		return invalid(MsgDocumentNumberFormat)
	}
	return valid(v)
}

func ValidateEmail(value string) ValidationResult {
	v := strings.TrimSpace(value)
	if v == "" {
		return invalid("Email is required")
	}
	if utf8.RuneCountInString(v) > EmailMaxLength {
		return invalid("Email must be less than 255 characters")
	}
	if err := fieldValidator.Var(v, "email"); err != nil {
		return invalid("Please enter a valid email address")
	}
	return valid(strings.ToLower(v))
}

func ValidatePassword(value string) ValidationResult {
	n := utf8.RuneCountInString(value)
	if n < PasswordMinLength {
		return invalid("Password must be at least 6 characters")
	}
	if n > PasswordMaxLength {
		return invalid("Password must be less than 128 characters")
	}
	return valid(value)
}

// ValidateAddress returns the trimmed address. The value is stored raw;
// escaping happens once, when it is rendered.
func ValidateAddress(value string) ValidationResult {
	v := strings.TrimSpace(value)
	n := utf8.RuneCountInString(v)
	switch {
	case v == "":
		return invalid(MsgAddressRequired)
	case n < AddressMinLength:
		return invalid(MsgAddressTooShort)
	case n > AddressMaxLength:
		return invalid(MsgAddressTooLong)
	case strings.ContainsAny(v, "<>{}"):
		return invalid(MsgAddressInvalidChars)
	}
	return valid(v)
}

func ValidateNotes(value string) ValidationResult {
	if utf8.RuneCountInString(value) > NotesMaxLength {
		return invalid("Notes must be less than 2000 characters")
	}
	return valid(value)
}

func ValidateReason(value string) ValidationResult {
	if utf8.RuneCountInString(value) > ReasonMaxLength {
		return invalid("Reason must be less than 1000 characters")
	}
	return valid(value)
}

var sanitizer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Sanitize HTML-escapes untrusted text for display. It is not idempotent:
// escaping already escaped text encodes the entities again, so call it once,
// at render time.
func Sanitize(text string) string {
	return sanitizer.Replace(text)
}
