package oracle

import (
	"context"
	"fmt"

	"blocklotto/domain/entities"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
)

// blockSource is the subset of the node RPC the relay needs.
// *rpcclient.Client satisfies it.
type blockSource interface {
	GetBlockCount() (int64, error)
	GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
}

// BitcoindConfig holds the node connection settings
type BitcoindConfig struct {
	Host        string
	User        string
	Pass        string
	DisableTLS  bool
	StartHeight int64
	CacheSize   int
	// CacheDepth is the number of confirmations after which a hash is cached
	CacheDepth int64
}

// BitcoindRelay answers oracle queries from a bitcoind or btcd node over JSON-RPC
type BitcoindRelay struct {
	source      blockSource
	client      *rpcclient.Client
	startHeight int64
	cacheDepth  int64
	cache       *lru.Cache
}

// NewBitcoindRelay connects to the node in HTTP POST mode
func NewBitcoindRelay(cfg BitcoindConfig) (*BitcoindRelay, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create bitcoind rpc client for %s: %w", cfg.Host, err)
	}

	relay, err := newBitcoindRelay(client, cfg)
	if err != nil {
		client.Shutdown()
		return nil, err
	}
	relay.client = client

	log.WithFields(log.Fields{
		"host":         cfg.Host,
		"start_height": cfg.StartHeight,
		"cache_size":   cfg.CacheSize,
	}).Info("Bitcoind relay configured")

	return relay, nil
}

func newBitcoindRelay(source blockSource, cfg BitcoindConfig) (*BitcoindRelay, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create block hash cache: %w", err)
	}

	return &BitcoindRelay{
		source:      source,
		startHeight: cfg.StartHeight,
		cacheDepth:  cfg.CacheDepth,
		cache:       cache,
	}, nil
}

// TipHeight returns the node's current block count
func (r *BitcoindRelay) TipHeight(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tip, err := r.source.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get block count: %w", err)
	}

	return tip, nil
}

// BlockHash returns the canonical hash at height. Heights above the tip are
// NotYetAvailable and heights below the start height are UnknownHeight.
func (r *BitcoindRelay) BlockHash(ctx context.Context, height int64) (*chainhash.Hash, error) {
	if height < r.startHeight || height < 0 {
		return nil, fmt.Errorf("%w: height %d is below tracked start %d", entities.ErrUnknownHeight, height, r.startHeight)
	}

	if cached, ok := r.cache.Get(height); ok {
		hash := cached.(chainhash.Hash)
		return &hash, nil
	}

	tip, err := r.TipHeight(ctx)
	if err != nil {
		return nil, err
	}
	if height > tip {
		return nil, fmt.Errorf("%w: height %d is above tip %d", entities.ErrNotYetAvailable, height, tip)
	}

	hash, err := r.source.GetBlockHash(height)
	if err != nil {
		return nil, fmt.Errorf("failed to get block hash at height %d: %w", height, err)
	}

	// Only cache hashes deep enough that a reorg cannot replace them
	if tip-height >= r.cacheDepth {
		r.cache.Add(height, *hash)
	}

	return hash, nil
}

// Close shuts down the RPC client
func (r *BitcoindRelay) Close() {
	if r.client != nil {
		r.client.Shutdown()
		r.client.WaitForShutdown()
	}
}
