// Package refgen produces prefixed, collision-resistant transaction
// references correlatable with gateway payment events.
package refgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefix identifies the kind of money movement a reference belongs to.
type Prefix string

const (
	PrefixDeposit    Prefix = "DEP"
	PrefixTransfer   Prefix = "TXN"
	PrefixPurchase   Prefix = "PUR"
	PrefixWithdrawal Prefix = "WTH"
	PrefixAdmin      Prefix = "ADMIN"
)

// Generator issues references of the form <PREFIX><ULID>. The ULID carries
// a millisecond timestamp followed by 80 bits of entropy, so references
// sort by creation time and collide only with negligible probability.
// The monotonic entropy source is shared, so the mutex guarantees two
// concurrently issued references within the same millisecond still differ.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New creates a generator backed by crypto/rand.
func New() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Generate returns a fresh reference for the given prefix. If the caller
// hits a unique-constraint violation at insert time it must call Generate
// again rather than reuse the reference.
func (g *Generator) Generate(prefix Prefix) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(g.now().UTC()), g.entropy)
	return string(prefix) + id.String()
}
