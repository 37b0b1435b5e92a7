package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialBoxRoundTrip(t *testing.T) {
	box := NewCredentialBox("a-long-enough-secret")
	creds := map[string]string{"bot_token": "123:abc", "webhook_secret": "s3cret"}

	sealed, err := box.Seal(creds)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "123:abc")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, creds, opened)
}

func TestCredentialBoxRejectsWrongKey(t *testing.T) {
	sealed, err := NewCredentialBox("key-one-key-one").Seal(map[string]string{"a": "b"})
	require.NoError(t, err)

	_, err = NewCredentialBox("key-two-key-two").Open(sealed)
	assert.Error(t, err)

	_, err = NewCredentialBox("key-one-key-one").Open(sealed[:10])
	assert.Error(t, err)
}

func TestCredentialBoxEmpty(t *testing.T) {
	opened, err := NewCredentialBox("k").Open(nil)
	require.NoError(t, err)
	assert.Empty(t, opened)
}
