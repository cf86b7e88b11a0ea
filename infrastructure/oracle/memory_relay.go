package oracle

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"blocklotto/domain/entities"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MemoryRelay is an in-process header relay for tests and local development.
// Heights start at startHeight and grow by Append or Mine.
type MemoryRelay struct {
	mu          sync.RWMutex
	startHeight int64
	hashes      []chainhash.Hash
}

// NewMemoryRelay creates an empty relay whose first block will be startHeight
func NewMemoryRelay(startHeight int64) *MemoryRelay {
	return &MemoryRelay{startHeight: startHeight}
}

// TipHeight returns the height of the newest block, or startHeight-1 when empty
func (r *MemoryRelay) TipHeight(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tipLocked(), nil
}

func (r *MemoryRelay) tipLocked() int64 {
	return r.startHeight + int64(len(r.hashes)) - 1
}

// BlockHash returns the hash at height
func (r *MemoryRelay) BlockHash(ctx context.Context, height int64) (*chainhash.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if height < r.startHeight {
		return nil, fmt.Errorf("%w: height %d is below tracked start %d", entities.ErrUnknownHeight, height, r.startHeight)
	}
	if tip := r.tipLocked(); height > tip {
		return nil, fmt.Errorf("%w: height %d is above tip %d", entities.ErrNotYetAvailable, height, tip)
	}

	hash := r.hashes[height-r.startHeight]
	return &hash, nil
}

// Append adds a block with the given hash and returns its height
func (r *MemoryRelay) Append(hash chainhash.Hash) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hashes = append(r.hashes, hash)
	return r.tipLocked()
}

// Mine appends n blocks with deterministic hashes derived from their height
// and returns the new tip
func (r *MemoryRelay) Mine(n int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < n; i++ {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(r.tipLocked()+1))
		r.hashes = append(r.hashes, chainhash.DoubleHashH(buf[:]))
	}
	return r.tipLocked()
}

// SetHash replaces the hash at an existing height, simulating a reorg
func (r *MemoryRelay) SetHash(height int64, hash chainhash.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if height < r.startHeight || height > r.tipLocked() {
		return fmt.Errorf("height %d outside relay range %d-%d", height, r.startHeight, r.tipLocked())
	}
	r.hashes[height-r.startHeight] = hash
	return nil
}

// MineTo appends blocks until the tip reaches height
func (r *MemoryRelay) MineTo(height int64) int64 {
	r.mu.RLock()
	missing := height - r.tipLocked()
	r.mu.RUnlock()

	if missing <= 0 {
		tip, _ := r.TipHeight(context.Background())
		return tip
	}
	return r.Mine(int(missing))
}
