package relay

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultDedupeSize bounds how many interaction IDs are remembered. Discord
// interaction redelivery happens within seconds, so a small window is enough.
const defaultDedupeSize = 1024

// Dedupe remembers recently relayed interaction IDs so gateway redelivery
// cannot resume the same workflow twice.
type Dedupe struct {
	seen    *lru.Cache[string, struct{}]
	metrics *Metrics
}

// NewDedupe creates a dedupe guard holding up to size interaction IDs.
// Pass 0 for the default size.
func NewDedupe(size int, metrics *Metrics) (*Dedupe, error) {
	if size <= 0 {
		size = defaultDedupeSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Dedupe{seen: cache, metrics: metrics}, nil
}

// Claim marks an interaction ID as relayed. It returns false if the ID was
// already claimed, in which case the caller must not relay again.
// Safe for concurrent handlers: check-and-insert is a single cache operation.
func (d *Dedupe) Claim(interactionID string) bool {
	contained, _ := d.seen.ContainsOrAdd(interactionID, struct{}{})
	if contained {
		if d.metrics != nil {
			d.metrics.DuplicatesTotal.Inc()
		}
		return false
	}
	return true
}

// Release forgets a claimed interaction ID. Used when relaying failed before
// reaching n8n, so the operator can retry the same interaction path.
func (d *Dedupe) Release(interactionID string) {
	d.seen.Remove(interactionID)
}
