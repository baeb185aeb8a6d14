// Package naming derives the per-user runtime resource names and the
// credentials handed to wallet processes.
package naming

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidUsername is returned for usernames that cannot be embedded in a
// container or volume name.
var ErrInvalidUsername = errors.New("invalid username")

const (
	volumePrefix        = "user_"
	volumeSuffix        = "_wallet"
	initContainerPrefix = "init_wallet_"
	rpcContainerPrefix  = "rpc_wallet_"

	passwordBytes = 8
)

// VolumeName is the data volume holding the user's wallet files.
func VolumeName(username string) string {
	return volumePrefix + username + volumeSuffix
}

// InitContainerName names the one-shot provisioning container.
func InitContainerName(username string) string {
	return initContainerPrefix + username
}

// RPCContainerName names the long-running wallet RPC container.
func RPCContainerName(username string) string {
	return rpcContainerPrefix + username
}

// Validate checks that username is non-empty and only uses characters valid
// in Docker object names: A-Z a-z 0-9 . _ -, starting with an alphanumeric.
func Validate(username string) error {
	if username == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUsername)
	}
	if strings.Contains(username, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	for i, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case i > 0 && (r == '.' || r == '_' || r == '-'):
		default:
			return fmt.Errorf("%w: %q", ErrInvalidUsername, username)
		}
	}
	return nil
}

// NewPassword returns a random 16 character hex credential.
func NewPassword() (string, error) {
	b := make([]byte, passwordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}
