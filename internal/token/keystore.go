package token

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iliyamo/web-app-template/internal/utils"
)

// sessionKeyFile holds the hex-encoded symmetric key that signs session
// cookies.  Keeping it on disk (instead of in the config, which might be
// regenerated) means sessions survive process restarts.  Deleting or
// rotating the file revokes every outstanding session; that is the
// documented recovery path, not a bug.
const sessionKeyFile = "session.key"

// LoadOrCreateSessionKey returns the durable session signing key from
// dir/keys, generating a fresh 32-byte key on first run.
func LoadOrCreateSessionKey(dir string) ([]byte, error) {
	keyDir := filepath.Join(dir, "keys")
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: create %s: %w", keyDir, err)
	}
	path := filepath.Join(keyDir, sessionKeyFile)

	raw, err := os.ReadFile(path)
	if err == nil {
		key, decErr := hex.DecodeString(string(raw))
		if decErr != nil || len(key) == 0 {
			return nil, fmt.Errorf("keystore: %s is corrupt", path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}

	encoded, err := utils.RandomHex(32)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("keystore: write %s: %w", path, err)
	}
	key, _ := hex.DecodeString(encoded)
	return key, nil
}
