package receiver

import (
	"sync"
	"time"
)

// DefaultSpeakingWindow is how long after its last packet a user still
// counts as speaking.
const DefaultSpeakingWindow = 250 * time.Millisecond

type speaker struct {
	last  time.Time
	timer Timer
	gen   uint64
}

// SpeakingMap timestamps packet arrival per user and reports speech start
// and end. Callbacks run outside the map lock; the end callback runs on a
// timer goroutine.
type SpeakingMap struct {
	clock  Clock
	window time.Duration

	mu       sync.Mutex
	speakers map[string]*speaker
	onStart  func(userID string)
	onEnd    func(userID string)
}

// NewSpeakingMap returns a map that ends speech window after the last
// packet. A nil clock selects DefaultClock.
func NewSpeakingMap(window time.Duration, clock Clock) *SpeakingMap {
	if window <= 0 {
		window = DefaultSpeakingWindow
	}
	if clock == nil {
		clock = DefaultClock{}
	}
	return &SpeakingMap{
		clock:    clock,
		window:   window,
		speakers: make(map[string]*speaker),
	}
}

// OnStart registers a callback for a user starting to speak.
func (m *SpeakingMap) OnStart(fn func(userID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStart = fn
}

// OnEnd registers a callback for a user falling silent.
func (m *SpeakingMap) OnEnd(fn func(userID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = fn
}

// OnPacket records a packet from userID.
func (m *SpeakingMap) OnPacket(userID string) {
	m.mu.Lock()
	sp, active := m.speakers[userID]
	if !active {
		sp = &speaker{}
		m.speakers[userID] = sp
	}
	sp.last = m.clock.Now()
	sp.gen++
	gen := sp.gen
	if sp.timer != nil {
		sp.timer.Stop()
	}
	sp.timer = m.clock.AfterFunc(m.window, func() { m.expire(userID, gen) })
	onStart := m.onStart
	m.mu.Unlock()

	if !active && onStart != nil {
		onStart(userID)
	}
}

// expire ends speech unless a newer packet re-armed the timer.
func (m *SpeakingMap) expire(userID string, gen uint64) {
	m.mu.Lock()
	sp, ok := m.speakers[userID]
	if !ok || sp.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.speakers, userID)
	onEnd := m.onEnd
	m.mu.Unlock()

	if onEnd != nil {
		onEnd(userID)
	}
}

// IsSpeaking reports whether userID sent a packet within the window.
func (m *SpeakingMap) IsSpeaking(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.speakers[userID]
	return ok
}

// LastPacket returns when userID was last heard while speaking.
func (m *SpeakingMap) LastPacket(userID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.speakers[userID]
	if !ok {
		return time.Time{}, false
	}
	return sp.last, true
}

// Speaking returns the users currently speaking.
func (m *SpeakingMap) Speaking() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]string, 0, len(m.speakers))
	for id := range m.speakers {
		users = append(users, id)
	}
	return users
}

// Stop cancels pending end timers without firing callbacks.
func (m *SpeakingMap) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sp := range m.speakers {
		if sp.timer != nil {
			sp.timer.Stop()
		}
		delete(m.speakers, id)
	}
}
