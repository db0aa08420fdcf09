package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// RedeemResult is the outcome of redeeming a pairing code.
type RedeemResult int

const (
	RedeemOK RedeemResult = iota
	RedeemUnknown
	RedeemExpired
)

// maxRedeemFailures unknown codes in a row void every pending code, which
// keeps a six digit space from being walked.
const maxRedeemFailures = 5

// PairingStore tracks pending pairing codes. Codes are single use.
type PairingStore struct {
	mu       sync.Mutex
	entries  map[string]time.Time // code -> expiry
	failures int
	ttl      time.Duration
	now      func() time.Time
}

func NewPairingStore(ttl time.Duration) *PairingStore {
	return &PairingStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// StartCleanup removes expired codes periodically until ctx is canceled.
func (store *PairingStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.CleanupExpired()
			case <-ctx.Done():
				store.mu.Lock()
				clear(store.entries)
				store.mu.Unlock()
				return
			}
		}
	}()
}

func (store *PairingStore) CleanupExpired() {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := store.now()
	for code, expires := range store.entries {
		if now.After(expires) {
			delete(store.entries, code)
		}
	}
}

// Create generates and stores a new six digit pairing code.
func (store *PairingStore) Create() (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for attempts := 0; attempts < 10; attempts++ {
		code, err := randomPairingCode()
		if err != nil {
			return "", err
		}
		if _, exists := store.entries[code]; exists {
			continue
		}
		store.entries[code] = store.now().Add(store.ttl)
		return code, nil
	}

	return "", fmt.Errorf("unable to generate unique pairing code")
}

// Redeem consumes code. Expired codes are consumed too.
func (store *PairingStore) Redeem(code string) RedeemResult {
	store.mu.Lock()
	defer store.mu.Unlock()

	expires, ok := store.entries[code]
	if !ok {
		store.failures++
		if store.failures >= maxRedeemFailures {
			clear(store.entries)
			store.failures = 0
		}
		return RedeemUnknown
	}
	delete(store.entries, code)
	store.failures = 0
	if store.now().After(expires) {
		return RedeemExpired
	}
	return RedeemOK
}

// Pending returns the number of outstanding codes.
func (store *PairingStore) Pending() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.entries)
}

func randomPairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}
