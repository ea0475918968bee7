package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"Valid", "SecurePass12", false},
		{"Exactly Min Length", "Abcdefg1", false},
		{"Exactly Max Length", "A" + strings.Repeat("b", 126) + "1", false},
		{"Too Short", "Small1!", true},
		{"Too Long", "A" + strings.Repeat("b", 127) + "1", true},
		{"No Upper", "securepass12", true},
		{"No Lower", "SECUREPASS12", true},
		{"No Digit", "SecurePass!!", true},
		{"Unicode Characters", "ÅngstromPass12", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()
	// 254 chars total: 64 local + @ + 185 domain label + ".com" (4)
	emailAt254 := strings.Repeat("a", 64) + "@" + strings.Repeat("b", 185) + ".com"
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"Valid", "test@example.com", false},
		{"Subdomain", "parent@mail.school.org", false},
		{"Exactly 254 Characters", emailAt254, false},
		{"Too Long", "a" + emailAt254, true},
		{"Invalid Format", "not-an-email", true},
		{"Missing Domain", "user@", true},
		{"Multiple At Symbols", "user@@example.com", true},
		{"Space In Local Part", "user @example.com", true},
		{"Trailing Dot In Domain", "user@example.com.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "mom@example.com", NormalizeEmail("  Mom@Example.COM "))
}

func TestValidateDisplayName(t *testing.T) {
	assert.NoError(t, ValidateDisplayName("Ava"))
	assert.Error(t, ValidateDisplayName("   "))
	assert.Error(t, ValidateDisplayName(strings.Repeat("x", MaxDisplayNameLength+1)))
}

func TestValidateContent(t *testing.T) {
	got, err := ValidateContent("content", "  hello  ", 500)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = ValidateContent("content", " \n\t ", 500)
	assert.Error(t, err)

	// Limits count characters, not bytes.
	_, err = ValidateContent("comment", strings.Repeat("é", 200), 200)
	assert.NoError(t, err)
	_, err = ValidateContent("comment", strings.Repeat("é", 201), 200)
	assert.Error(t, err)
}

func TestFriendCode(t *testing.T) {
	assert.Equal(t, "ABCD2345", NormalizeFriendCode(" abcd2345 "))
	assert.NoError(t, ValidateFriendCode("ABCD2345"))
	assert.Error(t, ValidateFriendCode("ABCD234"))
	assert.Error(t, ValidateFriendCode("ABCDO234"), "O is not in the alphabet")
	assert.Error(t, ValidateFriendCode("abcd2345"))
}
