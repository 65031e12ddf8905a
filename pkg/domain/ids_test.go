package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "discard/pkg/domain-errors"
)

var parsers = map[string]func(string) (string, error){
	"user": func(s string) (string, error) {
		u, err := ParseUserID(s)
		return u.String(), err
	},
	"address": func(s string) (string, error) {
		a, err := ParseAddressID(s)
		return a.String(), err
	},
}

func TestParseRejectsUntrustedInput(t *testing.T) {
	inputs := map[string]string{
		"empty":            "",
		"whitespace":       "   ",
		"not a uuid":       "not-a-uuid",
		"nil uuid":         uuid.Nil.String(),
		"sql":              "'; DROP TABLE receive_addresses;--",
		"null byte":        "550e8400\x00-e29b-41d4-a716-446655440000",
		"zero-width space": "550e8400\u200B-e29b-41d4-a716-446655440000",
		"oversized":        strings.Repeat("a", 1000),
		"base58 address":   "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		"trailing garbage": "550e8400-e29b-41d4-a716-446655440000x",
	}
	for kind, parse := range parsers {
		for name, in := range inputs {
			t.Run(kind+"/"+name, func(t *testing.T) {
				_, err := parse(in)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			})
		}
	}
}

func TestParseNormalizesCase(t *testing.T) {
	for kind, parse := range parsers {
		t.Run(kind, func(t *testing.T) {
			got, err := parse("550E8400-E29B-41D4-A716-446655440000")
			require.NoError(t, err)
			assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", got)
		})
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, UserID{}.IsNil())
	assert.True(t, AddressID{}.IsNil())

	u, err := ParseUserID(uuid.NewString())
	require.NoError(t, err)
	assert.False(t, u.IsNil())
}
