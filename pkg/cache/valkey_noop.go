package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

// noopValkeyStore provides an in-memory, process-local fallback that
// satisfies ValkeyStore when the external cache is unavailable. It is
// best-effort and intended for development and degraded operation; data is
// not shared across replicas and is lost on restart.
type noopValkeyStore struct {
	m      map[string][]byte
	mu     sync.RWMutex
	logger logger.Logger
}

func NewNoopValkeyStore(log logger.Logger) ValkeyStore {
	log.Warn("Valkey cache unavailable; using in-memory fallback (noop)")
	return &noopValkeyStore{m: make(map[string][]byte), logger: log}
}

func (n *noopValkeyStore) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	b, ok := n.m[key]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return b, nil
}

func (n *noopValkeyStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		jb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b = jb
	}
	n.mu.Lock()
	n.m[key] = b
	n.mu.Unlock()
	return nil
}

func (n *noopValkeyStore) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	delete(n.m, key)
	n.mu.Unlock()
	return nil
}

func (n *noopValkeyStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	keys := []string{}
	for k := range n.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (n *noopValkeyStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	// In noop mode, always acquire the lock (no contention)
	return true, nil
}

func (n *noopValkeyStore) ReleaseLock(ctx context.Context, key string) error {
	// In noop mode, nothing to release
	return nil
}

// HealthCheck returns an error to indicate no external Valkey connectivity.
func (n *noopValkeyStore) HealthCheck(ctx context.Context) error {
	return fmt.Errorf("valkey noop cache in use (external cache not connected)")
}
