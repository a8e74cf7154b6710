package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"Empty", "", "<not set>"},
		{"Short", "short", "***"},
		{"Long", "myverylongsecretkey123", "myve...y123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskSecret(tt.secret))
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("COMMON_TEST_VAR", "value")
	assert.Equal(t, "value", GetEnv("COMMON_TEST_VAR", "default"))
	assert.Equal(t, "default", GetEnv("COMMON_TEST_VAR_UNSET", "default"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("COMMON_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("COMMON_TEST_INT", 7))
	assert.Equal(t, 7, GetEnvInt("COMMON_TEST_INT_UNSET", 7))

	t.Setenv("COMMON_TEST_INT_BAD", "not-a-number")
	assert.Equal(t, 7, GetEnvInt("COMMON_TEST_INT_BAD", 7))
}

func TestGetEnvBool(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "yes": true, "on": true, "false": false, "0": false, "no": false, "off": false}
	for val, want := range cases {
		t.Setenv("COMMON_TEST_BOOL", val)
		assert.Equal(t, want, GetEnvBool("COMMON_TEST_BOOL", !want))
	}
	assert.True(t, GetEnvBool("COMMON_TEST_BOOL_UNSET", true))
}

func TestMust(t *testing.T) {
	assert.Equal(t, 5, Must(5, nil))
	assert.Panics(t, func() { Must(0, errors.New("boom")) })
	assert.Panics(t, func() { MustNoError(errors.New("boom")) })
	assert.NotPanics(t, func() { MustNoError(nil) })
}

func TestPtrAndPtrValue(t *testing.T) {
	p := Ptr(42)
	assert.Equal(t, 42, *p)
	assert.Equal(t, 42, PtrValue(p))

	var nilPtr *int
	assert.Equal(t, 0, PtrValue(nilPtr))
}
