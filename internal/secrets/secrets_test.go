package secrets_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/internal/secrets"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestBox_EncryptDecrypt(t *testing.T) {
	box, err := secrets.NewBox(testKey)
	require.NoError(t, err)

	packed, err := box.Encrypt(`{"GLS":{"customerId":"2080060960"}}`)
	require.NoError(t, err)

	parts := strings.Split(packed, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 32)
	assert.Len(t, parts[1], 32)

	plain, err := box.Decrypt(packed)
	require.NoError(t, err)
	assert.Equal(t, `{"GLS":{"customerId":"2080060960"}}`, plain)
}

func TestBox_FreshIV(t *testing.T) {
	box, err := secrets.NewBox(testKey)
	require.NoError(t, err)

	a, _ := box.Encrypt("same")
	b, _ := box.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestBox_Tampered(t *testing.T) {
	box, err := secrets.NewBox(testKey)
	require.NoError(t, err)

	packed, err := box.Encrypt("secret")
	require.NoError(t, err)

	parts := strings.Split(packed, ":")
	tampered := parts[0] + ":" + strings.Repeat("0", 32) + ":" + parts[2]
	_, err = box.Decrypt(tampered)
	assert.Error(t, err)
}

func TestBox_Malformed(t *testing.T) {
	box, err := secrets.NewBox(testKey)
	require.NoError(t, err)

	for _, input := range []string{"", "abc", "zz:00:00", "00:00:00"} {
		_, err := box.Decrypt(input)
		assert.ErrorIs(t, err, secrets.ErrMalformed, input)
	}
}

func TestNewBox_InvalidKey(t *testing.T) {
	_, err := secrets.NewBox("not-hex")
	assert.Error(t, err)

	_, err = secrets.NewBox("0011")
	assert.Error(t, err)
}
