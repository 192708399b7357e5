// Package failover implements connect-time address selection across
// the multiple hosts a "host1,host2" option string can name, adapted
// from the teacher's replica/pool.go round-robin + health-tracking
// Pool (there: choose a replica to route a query to; here: choose the
// next address connect_async should dial).
package failover

import "sync"

// Pool round-robins over a fixed address list, skipping addresses
// last marked unhealthy until every address has been tried.
type Pool struct {
	mu        sync.Mutex
	addresses []string
	healthy   map[string]bool
	next      int
}

// New returns a Pool seeded with addresses, all initially healthy.
func New(addresses []string) *Pool {
	healthy := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		healthy[a] = true
	}
	return &Pool{addresses: addresses, healthy: healthy}
}

// Next returns the next address to try: the first healthy address
// starting from the round-robin cursor, or — if every address is
// currently unhealthy — the next address regardless, since a
// connection attempt is how an unhealthy address gets re-tested.
func (p *Pool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.addresses) == 0 {
		return "", false
	}
	for i := 0; i < len(p.addresses); i++ {
		idx := (p.next + i) % len(p.addresses)
		if p.healthy[p.addresses[idx]] {
			p.next = idx + 1
			return p.addresses[idx], true
		}
	}
	idx := p.next % len(p.addresses)
	p.next = idx + 1
	return p.addresses[idx], true
}

// MarkHealthy records that address succeeded a connection attempt.
func (p *Pool) MarkHealthy(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy[address] = true
}

// MarkUnhealthy records that address failed a connection attempt, so
// Next skips it while any other address remains healthy.
func (p *Pool) MarkUnhealthy(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy[address] = false
}

// Addresses returns the full configured address list, in order.
func (p *Pool) Addresses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.addresses))
	copy(out, p.addresses)
	return out
}
