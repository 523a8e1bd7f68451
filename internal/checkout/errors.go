package checkout

import "sort"

// Error codes raised outside discount validation
const (
	ErrCodeEmptyCart            = "empty_cart"
	ErrCodeAgreeToTerms         = "agree_to_terms"
	ErrCodeInvalidGateway       = "invalid_gateway"
	ErrCodeGatewayFailed        = "gateway_error"
	ErrCodeInvalidEmail         = "invalid_email"
	ErrCodeInvalidFirstName     = "invalid_first_name"
	ErrCodeRegistrationRequired = "registration_required"
	ErrCodeUsernameEmpty        = "username_empty"
	ErrCodeUsernameInvalid      = "username_invalid"
	ErrCodeUsernameUnavailable  = "username_unavailable"
	ErrCodeEmailUnavailable     = "email_unavailable"
	ErrCodePasswordEmpty        = "password_empty"
	ErrCodeConfirmationEmpty    = "confirmation_empty"
	ErrCodePasswordMismatch     = "password_mismatch"
	ErrCodeUsernameIncorrect    = "username_incorrect"
	ErrCodePasswordIncorrect    = "password_incorrect"
	ErrCodeDuplicatePurchase    = "duplicate_purchase"
)

// Errors maps error codes to visitor-facing messages. It is kept in the
// session so a redirect can render everything that failed.
type Errors map[string]string

// Set records message under code, replacing any previous message
func (e Errors) Set(code, message string) {
	e[code] = message
}

// Unset removes code
func (e Errors) Unset(code string) {
	delete(e, code)
}

// Clear removes every error
func (e Errors) Clear() {
	for code := range e {
		delete(e, code)
	}
}

// Has reports whether code is set
func (e Errors) Has(code string) bool {
	_, ok := e[code]
	return ok
}

// Any reports whether at least one error is set
func (e Errors) Any() bool {
	return len(e) > 0
}

// Codes returns the set codes in sorted order
func (e Errors) Codes() []string {
	codes := make([]string, 0, len(e))
	for code := range e {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Merge copies every error from other into e
func (e Errors) Merge(other Errors) {
	for code, msg := range other {
		e[code] = msg
	}
}
