package checkout

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Purchase variants posted in edd-purchase-var
const (
	PurchaseVarRegister = "needs-to-register"
	PurchaseVarLogin    = "needs-to-login"
)

var (
	validate      = validator.New()
	usernameChars = regexp.MustCompile(`^[A-Za-z0-9 _.@\-]+$`)
)

// Identity is who is buying: a guest, a new account, or an existing account
type Identity interface {
	// Kind names the variant for logs and metrics
	Kind() string
	// Email is the address the receipt goes to, when already known
	Email() string
	// Validate records every field problem in errs
	Validate(errs Errors, rules IdentityRules)
}

// IdentityRules are the shop settings identity validation depends on
type IdentityRules struct {
	AllowGuest bool
	// LoggedIn is true when the session already belongs to a customer
	LoggedIn bool
}

// Guest checks out with an email address only
type Guest struct {
	EmailAddr string
	FirstName string
	LastName  string
}

// NewAccount registers during checkout
type NewAccount struct {
	Login           string
	EmailAddr       string
	Password        string
	PasswordConfirm string
	FirstName       string
	LastName        string
}

// ExistingAccount signs in during checkout
type ExistingAccount struct {
	Login    string
	Password string
}

func (Guest) Kind() string { return "guest" }
func (NewAccount) Kind() string { return "register" }
func (ExistingAccount) Kind() string { return "login" }

func (g Guest) Email() string { return g.EmailAddr }
func (n NewAccount) Email() string { return n.EmailAddr }
func (ExistingAccount) Email() string { return "" }

// Validate checks the guest fields. Guests are refused when the shop
// requires an account and the visitor is not signed in.
func (g Guest) Validate(errs Errors, rules IdentityRules) {
	if !rules.AllowGuest && !rules.LoggedIn {
		errs.Set(ErrCodeRegistrationRequired, "You must register or login to complete your purchase")
	}
	if !ValidEmail(g.EmailAddr) {
		errs.Set(ErrCodeInvalidEmail, "Please enter a valid email address")
	}
	if strings.TrimSpace(g.FirstName) == "" {
		errs.Set(ErrCodeInvalidFirstName, "Please enter your first name")
	}
}

// Validate checks the registration fields. Availability of the login and
// email is checked against storage by the caller.
func (n NewAccount) Validate(errs Errors, _ IdentityRules) {
	switch {
	case strings.TrimSpace(n.Login) == "":
		errs.Set(ErrCodeUsernameEmpty, "Please enter a username")
	case !ValidUsername(n.Login):
		errs.Set(ErrCodeUsernameInvalid, "Invalid username")
	}
	if !ValidEmail(n.EmailAddr) {
		errs.Set(ErrCodeInvalidEmail, "Please enter a valid email address")
	}
	if n.Password == "" {
		errs.Set(ErrCodePasswordEmpty, "Please enter a password")
	}
	if n.PasswordConfirm == "" {
		errs.Set(ErrCodeConfirmationEmpty, "Please enter your password confirmation")
	}
	if n.Password != "" && n.PasswordConfirm != "" && n.Password != n.PasswordConfirm {
		errs.Set(ErrCodePasswordMismatch, "Passwords don't match")
	}
	if strings.TrimSpace(n.FirstName) == "" {
		errs.Set(ErrCodeInvalidFirstName, "Please enter your first name")
	}
}

// Validate checks the login fields are present. Credentials are verified
// against storage by the caller.
func (e ExistingAccount) Validate(errs Errors, _ IdentityRules) {
	if strings.TrimSpace(e.Login) == "" {
		errs.Set(ErrCodeUsernameEmpty, "Please enter a username")
	}
	if e.Password == "" {
		errs.Set(ErrCodePasswordEmpty, "Please enter a password")
	}
}

// ParseIdentity picks the identity variant from the posted checkout form
func ParseIdentity(form url.Values) Identity {
	switch form.Get("edd-purchase-var") {
	case PurchaseVarRegister:
		return NewAccount{
			Login:           strings.TrimSpace(form.Get("edd_user_login")),
			EmailAddr:       strings.TrimSpace(form.Get("edd_email")),
			Password:        form.Get("edd_user_pass"),
			PasswordConfirm: form.Get("edd_user_pass_confirm"),
			FirstName:       strings.TrimSpace(form.Get("edd_first")),
			LastName:        strings.TrimSpace(form.Get("edd_last")),
		}
	case PurchaseVarLogin:
		return ExistingAccount{
			Login:    strings.TrimSpace(form.Get("edd_user_login")),
			Password: form.Get("edd_user_pass"),
		}
	default:
		return Guest{
			EmailAddr: strings.TrimSpace(form.Get("edd_email")),
			FirstName: strings.TrimSpace(form.Get("edd_first")),
			LastName:  strings.TrimSpace(form.Get("edd_last")),
		}
	}
}

// ValidEmail reports whether s is a usable email address
func ValidEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// ValidUsername reports whether s only uses characters allowed in logins
func ValidUsername(s string) bool {
	return usernameChars.MatchString(s)
}
