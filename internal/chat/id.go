package chat

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDProvider issues message identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type ulidProvider struct {
	mu      sync.Mutex
	clock   func() time.Time
	entropy *ulid.MonotonicEntropy
}

// NewULIDProvider constructs an IDProvider backed by a single monotonic
// entropy source. Ids issued by one provider sort in issue order even within
// the same millisecond, which is what keeps id order aligned with
// persistence order.
func NewULIDProvider(clock func() time.Time) IDProvider {
	if clock == nil {
		clock = time.Now
	}
	return &ulidProvider{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (p *ulidProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	value, err := ulid.New(ulid.Timestamp(p.clock().UTC()), p.entropy)
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
