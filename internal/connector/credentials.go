package connector

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/zalando/go-keyring"
)

// KeyringService groups vibemarket secrets in the OS keychain.
const KeyringService = "vibemarket"

// KeyringAccount is the keychain account name for a source login.
func KeyringAccount(source, username string) string {
	return source + ":" + strings.ToLower(strings.TrimSpace(username))
}

// ResolvePassword returns the password for account from the keychain, or
// fallback (config or environment) when the keychain has none.
func ResolvePassword(account, fallback string) (string, error) {
	if strings.TrimSpace(account) != "" {
		pw, err := keyring.Get(KeyringService, account)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback, nil
	}
	return "", eris.Wrap(ErrAuthentication, "connector: password not found (store it with `vibemarket credentials set` or VIBEMARKET_LINKEDIN_PASSWORD)")
}

// StorePassword saves a password in the keychain.
func StorePassword(account, password string) error {
	if strings.TrimSpace(account) == "" {
		return eris.New("connector: keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return eris.New("connector: password is empty")
	}
	return eris.Wrap(keyring.Set(KeyringService, account, password), "connector: store password")
}

// DeletePassword removes a password from the keychain.
func DeletePassword(account string) error {
	if strings.TrimSpace(account) == "" {
		return eris.New("connector: keyring account name is empty")
	}
	return eris.Wrap(keyring.Delete(KeyringService, account), "connector: delete password")
}
