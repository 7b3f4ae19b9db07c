package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// CAS is the off-chain content-addressed storage boundary. Upload must be
// deterministic: identical bytes always map to the same content id.
type CAS interface {
	Upload(ctx context.Context, data []byte) (string, error)
	Fetch(ctx context.Context, contentID string) ([]byte, error)
}

// MemoryCAS is the in-process store used in simulation mode and tests.
// Content ids are the keccak of the payload, so determinism holds trivially.
type MemoryCAS struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryCAS() *MemoryCAS {
	return &MemoryCAS{objects: make(map[string][]byte)}
}

func (c *MemoryCAS) Upload(_ context.Context, data []byte) (string, error) {
	id := fmt.Sprintf("%x", crypto.Keccak256(data))
	c.mu.Lock()
	c.objects[id] = append([]byte(nil), data...)
	c.mu.Unlock()
	return id, nil
}

func (c *MemoryCAS) Fetch(_ context.Context, contentID string) ([]byte, error) {
	c.mu.RLock()
	data, ok := c.objects[contentID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("chain: content %s not found", contentID)
	}
	return append([]byte(nil), data...), nil
}
