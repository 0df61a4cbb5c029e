package contract

import "context"

// KVRepository is a session-scoped key/value backend. Values are JSON
// documents; a missing key is reported with found == false, not an error.
type KVRepository interface {
	Get(ctx context.Context, sessionID, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID, key string) error
	Clear(ctx context.Context, sessionID string) error
}
