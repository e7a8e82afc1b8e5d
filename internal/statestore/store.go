// Package statestore provides TTL-backed key-value persistence for workflow
// outputs and selection lists.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// Store is a TTL key-value store. Values are JSON-serializable.
// Implementations must be safe for concurrent use.
type Store interface {
	// Set stores value under key with the given TTL. A non-positive TTL
	// stores without expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get retrieves the value stored under key into dest (a pointer).
	// Returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string, dest interface{}) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// AdapterInfo returns diagnostic information for the readiness probe.
	AdapterInfo(ctx context.Context) (map[string]interface{}, error)

	Close() error
}

// OutputKey builds the storage key for a step output or selection list.
func OutputKey(workflowID, name string) string {
	return fmt.Sprintf("%s:output:%s", workflowID, name)
}

// DefaultOutputTTL is how long step outputs remain readable after a run.
const DefaultOutputTTL = time.Hour
