package emailaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"User@Example.COM", "user@example.com"},
		{"user+tag@example.com", "user@example.com"},
		{"user+a+b@example.com", "user@example.com"},
		{"  user@example.com  ", "user@example.com"},
		{"user@example.com", "user@example.com"},
		// A leading plus is part of the local part, not an alias marker.
		{"+user@example.com", "+user@example.com"},
		{"not-an-email", "not-an-email"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("user@example.com"))
	assert.NoError(t, Validate("first.last@sub.example.co"))

	assert.ErrorIs(t, Validate("not-an-email"), ErrInvalid)
	assert.ErrorIs(t, Validate("user@"), ErrInvalid)
	assert.ErrorIs(t, Validate("@example.com"), ErrInvalid)
	assert.ErrorIs(t, Validate("user@example"), ErrInvalid)
	assert.ErrorIs(t, Validate(""), ErrInvalid)

	assert.ErrorIs(t, Validate("user@mailinator.com"), ErrDisposable)
	assert.ErrorIs(t, Validate("user@yopmail.com"), ErrDisposable)
}

func TestNormalizeThenValidateAliases(t *testing.T) {
	for _, in := range []string{"User+spam@Mailinator.com", "user@MAILINATOR.COM"} {
		assert.ErrorIs(t, Validate(Normalize(in)), ErrDisposable, "input %q", in)
	}
}
