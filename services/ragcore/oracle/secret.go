package oracle

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

var memguardInitOnce sync.Once

func initMemguard() {
	memguardInitOnce.Do(memguard.CatchInterrupt)
}

// loadAPIKey reads an API key into locked memory, preferring a Podman-style
// secrets file over the plain environment variable so the key never sits in
// the process environment longer than necessary.
func loadAPIKey(envVar, secretPath string) (*memguard.Enclave, error) {
	initMemguard()

	if data, err := os.ReadFile(secretPath); err == nil {
		key := strings.TrimSpace(string(data))
		buf := memguard.NewBufferFromBytes([]byte(key))
		return buf.Seal(), nil
	}

	if key := os.Getenv(envVar); key != "" {
		buf := memguard.NewBufferFromBytes([]byte(key))
		return buf.Seal(), nil
	}

	return nil, fmt.Errorf("%s not set and no secret found at %s", envVar, secretPath)
}

// openKey decrypts the enclave for the duration of a single call. Callers
// must Destroy the returned buffer as soon as the key is used.
func openKey(enclave *memguard.Enclave) (string, *memguard.LockedBuffer, error) {
	buf, err := enclave.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open sealed API key: %w", err)
	}
	return string(buf.Bytes()), buf, nil
}
