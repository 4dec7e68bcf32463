// Package vulncache stores the vulnerabilities found for a package version
// for a limited time.
package vulncache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/depscan/depscan/pkg/models"
)

// Store is a TTL cache keyed by package identity. An entry whose expiry has
// passed is never returned. Implementations are safe for concurrent use and
// replace an entry atomically on Set.
type Store interface {
	// Get returns the cached vulnerabilities for key. ok is false on a miss,
	// including when the entry has expired.
	Get(ctx context.Context, key models.PackageKey) (vulns []models.Vulnerability, ok bool, err error)
	// Set upserts the entry for key. A ttl <= 0 stores nothing.
	Set(ctx context.Context, key models.PackageKey, vulns []models.Vulnerability, ttl time.Duration) error
}

// Error is returned by a Store when the backend fails. Callers treat it as a
// miss for the affected operation.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("vulncache %s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("vulncache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func encode(vulns []models.Vulnerability) ([]byte, error) {
	if vulns == nil {
		vulns = []models.Vulnerability{}
	}

	return json.Marshal(vulns)
}

func decode(b []byte) ([]models.Vulnerability, error) {
	var vulns []models.Vulnerability
	if err := json.Unmarshal(b, &vulns); err != nil {
		return nil, err
	}

	return vulns, nil
}
