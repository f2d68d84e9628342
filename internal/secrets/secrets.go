// Package secrets resolves sensitive values (connection strings,
// passwords) from a TOML file, organised into scoped sections with a
// [global] fallback. Files ending in .age are decrypted with an age
// identity before parsing, so secrets can live in version control.
package secrets

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/BurntSushi/toml"
)

// Store holds secrets parsed from a TOML file, organised by section.
// Resolution checks the scoped section first, then falls back to [global].
type Store struct {
	data map[string]map[string]string
}

// Load parses a secrets file and returns a Store. If path is empty,
// returns nil (secrets are optional). A path ending in .age is decrypted
// with the identity file at identityPath first.
func Load(path, identityPath string) (*Store, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file %q: %w", path, err)
	}

	if strings.HasSuffix(path, ".age") {
		raw, err = decrypt(raw, identityPath)
		if err != nil {
			return nil, fmt.Errorf("decrypting secrets file %q: %w", path, err)
		}
	}

	var data map[string]map[string]string
	if err := toml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing secrets file %q: %w", path, err)
	}

	return &Store{data: data}, nil
}

func decrypt(ciphertext []byte, identityPath string) ([]byte, error) {
	if identityPath == "" {
		return nil, fmt.Errorf("age identity file required for encrypted secrets")
	}
	idFile, err := os.Open(identityPath)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer idFile.Close()

	identities, err := age.ParseIdentities(idFile)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %q: %w", identityPath, err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// Resolve looks up a secret by key, checking the scoped section first
// then falling back to the [global] section.
func (s *Store) Resolve(scope, key string) (string, error) {
	if section, ok := s.data[scope]; ok {
		if val, ok := section[key]; ok {
			return val, nil
		}
	}
	if section, ok := s.data["global"]; ok {
		if val, ok := section[key]; ok {
			return val, nil
		}
	}
	return "", fmt.Errorf("secret %q not found for scope %q", key, scope)
}
