package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestCredentials(t *testing.T) {
	keyring.MockInit()

	account := KeyringAccount("linkedin", " Me@Example.com ")
	assert.Equal(t, "linkedin:me@example.com", account)

	pw, err := ResolvePassword(account, "from-env")
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw, "falls back when the keychain is empty")

	require.NoError(t, StorePassword(account, "from-keychain"))
	pw, err = ResolvePassword(account, "from-env")
	require.NoError(t, err)
	assert.Equal(t, "from-keychain", pw)

	require.NoError(t, DeletePassword(account))
	_, err = ResolvePassword(account, "")
	assert.ErrorIs(t, err, ErrAuthentication)

	assert.Error(t, StorePassword("", "x"))
	assert.Error(t, StorePassword(account, " "))
	assert.Error(t, DeletePassword(""))
}
