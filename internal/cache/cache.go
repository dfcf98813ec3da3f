// Package cache stores authoritative backend answers so repeat scans skip the network.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/verity/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// ClaimKey keys a verification result by normalized claim text and page domain
func ClaimKey(claim, domain string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(claim), " "))
	return "verity:v1:claim:" + digest(strings.ToLower(domain)+"\x00"+normalized)
}

// TrustKey keys a domain trust score
func TrustKey(domain string) string {
	return "verity:v1:trust:" + digest(strings.ToLower(domain))
}

func digest(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg: disabled, memory only, or memory over disk
func New(cfg model.CacheConfig) Cache {
	switch {
	case !cfg.Enabled:
		return Noop{}
	case cfg.Dir == "":
		return NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	default:
		return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
	}
}

// Noop is a cache that never stores anything
type Noop struct{}

func (Noop) Get(string) ([]byte, bool)               { return nil, false }
func (Noop) Set(string, []byte, time.Duration) error { return nil }
func (Noop) Delete(string) error                     { return nil }
func (Noop) Clear() error                            { return nil }
