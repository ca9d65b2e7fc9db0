package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/config"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

// AddressCache 缓存已登记的地址，入账事件先查缓存再查库
type AddressCache struct {
	cache *ristretto.Cache[string, *database.Addresses]
	ttl   time.Duration
}

func NewAddressCache(cfg config.CacheConfig) (*AddressCache, error) {
	maxCost := cfg.AddressSize
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	cache, err := ristretto.NewCache[string, *database.Addresses](&ristretto.Config[string, *database.Addresses]{
		NumCounters: maxCost * 10, // number of keys to track frequency of
		MaxCost:     maxCost,      // one address costs 1
		BufferItems: 64,           // number of keys per Get buffer.
	})
	if err != nil {
		log.Error("create ristretto cache failed", "err", err)
		return nil, err
	}
	return &AddressCache{cache: cache, ttl: cfg.AddressTTL}, nil
}

func (c *AddressCache) Get(account ledger.Account) (*database.Addresses, bool) {
	return c.cache.Get(account.String())
}

func (c *AddressCache) Set(address *database.Addresses) {
	key := address.Account.String()
	if c.ttl > 0 {
		c.cache.SetWithTTL(key, address, 1, c.ttl)
	} else {
		c.cache.Set(key, address, 1)
	}
	c.cache.Wait()
}

func (c *AddressCache) Delete(account ledger.Account) {
	c.cache.Del(account.String())
}

func (c *AddressCache) Close() {
	c.cache.Close()
}
