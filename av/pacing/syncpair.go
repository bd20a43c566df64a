package pacing

import "sync"

// SyncPair links two streams so that neither runs ahead of the other by
// more than its tolerance. The pair does not own the streams; either stream
// may end, and Unlink releases both, without the other stream waiting on it.
type SyncPair struct {
	mu       sync.Mutex
	a, b     *Stream
	changed  chan struct{}
	unlinked bool
}

// Link pairs a and b. A stream already in a pair leaves it first.
func Link(a, b *Stream) *SyncPair {
	p := &SyncPair{a: a, b: b, changed: make(chan struct{})}
	for _, s := range []*Stream{a, b} {
		if old := s.setPair(p); old != nil {
			old.Unlink()
		}
	}
	return p
}

// Unlink dissolves the pair and wakes any waiting stream. It is safe to
// call more than once.
func (p *SyncPair) Unlink() {
	p.mu.Lock()
	if p.unlinked {
		p.mu.Unlock()
		return
	}
	p.unlinked = true
	a, b := p.a, p.b
	p.broadcastLocked()
	p.mu.Unlock()

	a.clearPair(p)
	b.clearPair(p)
}

// counterpart returns the other stream of the pair and the channel closed
// on the next change, or nil once unlinked.
func (p *SyncPair) counterpart(s *Stream) (*Stream, <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unlinked {
		return nil, nil
	}
	if p.a == s {
		return p.b, p.changed
	}
	return p.a, p.changed
}

// notify wakes every stream waiting on the pair.
func (p *SyncPair) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcastLocked()
}

func (p *SyncPair) broadcastLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}
