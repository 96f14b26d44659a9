package transform

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// keyEnvelope is the persisted wrapping of key material. The key never
// appears in logs; on disk it lives base64-encoded in a 0600 file so
// encrypted entries stay readable across restarts on the same device.
type keyEnvelope struct {
	Version   int    `json:"v"`
	Algorithm string `json:"alg"`
	Key       string `json:"key"`
}

const keyEnvelopeVersion = 1

// LoadOrCreateKey returns the standing encryption key stored at path,
// generating and persisting a fresh one on first use. Any failure here is a
// configuration error: callers should disable encryption for the session
// rather than fail cache operations.
func LoadOrCreateKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var env keyEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("transform: key envelope: %w", err)
		}
		key, err := base64.StdEncoding.DecodeString(env.Key)
		if err != nil {
			return nil, fmt.Errorf("transform: key material: %w", err)
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("transform: key material: got %d bytes, want %d", len(key), KeySize)
		}
		return key, nil
	case os.IsNotExist(err):
		return generateKey(path)
	default:
		return nil, fmt.Errorf("transform: read key: %w", err)
	}
}

func generateKey(path string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("transform: generate key: %w", err)
	}
	env := keyEnvelope{
		Version:   keyEnvelopeVersion,
		Algorithm: "xchacha20poly1305",
		Key:       base64.StdEncoding.EncodeToString(key),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transform: wrap key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("transform: key dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("transform: persist key: %w", err)
	}
	return key, nil
}
