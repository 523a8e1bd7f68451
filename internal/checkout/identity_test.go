package checkout

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity(t *testing.T) {
	guest := ParseIdentity(url.Values{"edd_email": {" a@b.co "}, "edd_first": {"Ann"}})
	require.IsType(t, Guest{}, guest)
	assert.Equal(t, "a@b.co", guest.Email())

	reg := ParseIdentity(url.Values{
		"edd-purchase-var": {PurchaseVarRegister},
		"edd_user_login":   {"ann"},
		"edd_email":        {"a@b.co"},
	})
	require.IsType(t, NewAccount{}, reg)
	assert.Equal(t, "register", reg.Kind())

	login := ParseIdentity(url.Values{"edd-purchase-var": {PurchaseVarLogin}, "edd_user_login": {"ann"}})
	require.IsType(t, ExistingAccount{}, login)
	assert.Empty(t, login.Email())
}

func TestGuestValidation(t *testing.T) {
	errs := Errors{}
	Guest{EmailAddr: "nope", FirstName: ""}.Validate(errs, IdentityRules{AllowGuest: false})

	assert.ElementsMatch(t, []string{ErrCodeRegistrationRequired, ErrCodeInvalidEmail, ErrCodeInvalidFirstName}, errs.Codes())

	errs = Errors{}
	Guest{EmailAddr: "ann@example.com", FirstName: "Ann"}.Validate(errs, IdentityRules{AllowGuest: true})
	assert.False(t, errs.Any())
}

func TestNewAccountValidation(t *testing.T) {
	errs := Errors{}
	NewAccount{Login: "bad<name>", EmailAddr: "", Password: "a", PasswordConfirm: "b"}.Validate(errs, IdentityRules{})

	assert.ElementsMatch(t, []string{
		ErrCodeUsernameInvalid,
		ErrCodeInvalidEmail,
		ErrCodePasswordMismatch,
		ErrCodeInvalidFirstName,
	}, errs.Codes())

	errs = Errors{}
	NewAccount{}.Validate(errs, IdentityRules{})
	assert.True(t, errs.Has(ErrCodeUsernameEmpty))
	assert.True(t, errs.Has(ErrCodePasswordEmpty))
	assert.True(t, errs.Has(ErrCodeConfirmationEmpty))
	assert.False(t, errs.Has(ErrCodePasswordMismatch))
}

func TestExistingAccountValidation(t *testing.T) {
	errs := Errors{}
	ExistingAccount{}.Validate(errs, IdentityRules{})
	assert.ElementsMatch(t, []string{ErrCodeUsernameEmpty, ErrCodePasswordEmpty}, errs.Codes())
}

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("ann.smith@shop"))
	assert.False(t, ValidUsername("ann<script>"))
	assert.False(t, ValidUsername(""))
}
