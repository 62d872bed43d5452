package suppress

import (
	"context"
	"sync"
	"time"
)

// MemoryFlags is an in-memory Flags implementation for tests and
// single-process deployments without Redis.
type MemoryFlags struct {
	mu       sync.RWMutex
	flags    map[string]time.Time // key -> expiry (zero time = never expires)
	debounce time.Duration
	now      func() time.Time
}

// Compile-time check that MemoryFlags implements Flags.
var _ Flags = (*MemoryFlags)(nil)

// NewMemoryFlags creates an empty in-memory flag store.
func NewMemoryFlags() *MemoryFlags {
	return &MemoryFlags{
		flags:    make(map[string]time.Time),
		debounce: DefaultDebounceWindow,
		now:      time.Now,
	}
}

func (f *MemoryFlags) set(key string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ttl > 0 {
		f.flags[key] = f.now().Add(ttl)
	} else {
		f.flags[key] = time.Time{}
	}
}

func (f *MemoryFlags) has(key string) bool {
	f.mu.RLock()
	expiry, ok := f.flags[key]
	f.mu.RUnlock()
	if !ok {
		return false
	}
	if !expiry.IsZero() && f.now().After(expiry) {
		f.mu.Lock()
		delete(f.flags, key)
		f.mu.Unlock()
		return false
	}
	return true
}

// SetDND marks a permanent opt-out.
func (f *MemoryFlags) SetDND(ctx context.Context, recipient string) error {
	f.set(flagKey(ReasonDND, recipient), 0)
	return nil
}

// SetStopCampaign halts automated cadence sends.
func (f *MemoryFlags) SetStopCampaign(ctx context.Context, recipient string) error {
	f.set(flagKey(ReasonStopCampaign, recipient), 0)
	return nil
}

// MarkActiveConversation sets the debounce marker.
func (f *MemoryFlags) MarkActiveConversation(ctx context.Context, recipient string) error {
	f.set(flagKey(ReasonActiveConversation, recipient), f.debounce)
	return nil
}

// Suppressed checks flags in the same priority order as the Redis store.
func (f *MemoryFlags) Suppressed(ctx context.Context, recipient string) (bool, string, error) {
	for _, reason := range []string{ReasonDND, ReasonStopCampaign, ReasonActiveConversation} {
		if f.has(flagKey(reason, recipient)) {
			return true, reason, nil
		}
	}
	return false, "", nil
}
