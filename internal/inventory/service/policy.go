package service

import (
	"hash/fnv"
	"strings"
	"time"

	"github.com/progami/wms-ecomos-sub005/pkg/config"
)

// DefaultLockTimeout is how long a writer waits for a busy balance key
const DefaultLockTimeout = 10 * time.Second

// LockPolicy decides how long a writer waits for a busy key
type LockPolicy struct {
	Timeout  time.Duration
	FailFast bool
}

// LockPolicyFromConfig reads the ledger lock settings
func LockPolicyFromConfig(cfg *config.LedgerConfig) LockPolicy {
	p := LockPolicy{Timeout: cfg.LockTimeout, FailFast: cfg.LockPolicy == config.LockPolicyFailFast}
	if p.Timeout <= 0 {
		p.Timeout = DefaultLockTimeout
	}
	return p
}

// Wait returns the wait passed to LockKey
func (p LockPolicy) Wait() time.Duration {
	if p.FailFast {
		return 0
	}
	return p.Timeout
}

// lockToken derives an advisory lock id for catalog writes. The namespace
// keeps these tokens apart from balance keys.
func lockToken(namespace string, parts ...string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace + ":" + strings.Join(parts, "|")))
	return int64(h.Sum64())
}
