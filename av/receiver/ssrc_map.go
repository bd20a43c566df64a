package receiver

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// UserData binds a user to the SSRCs their client sends on.
type UserData struct {
	UserID    string
	AudioSSRC uint32
	// VideoSSRC is zero when the user sends no video.
	VideoSSRC uint32
}

// SSRCMap is the directory of known senders keyed by audio SSRC.
//
// Callbacks run after the map lock is released, on the goroutine that made
// the change.
type SSRCMap struct {
	mu      sync.RWMutex
	entries map[uint32]UserData

	onCreate func(UserData)
	onUpdate func(old *UserData, updated UserData)
	onDelete func(UserData)
}

// NewSSRCMap returns an empty directory.
func NewSSRCMap() *SSRCMap {
	return &SSRCMap{entries: make(map[uint32]UserData)}
}

// OnCreate registers a callback for entries seen for the first time.
func (m *SSRCMap) OnCreate(fn func(UserData)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCreate = fn
}

// OnUpdate registers a callback for every upsert. old is nil when the entry
// was just created.
func (m *SSRCMap) OnUpdate(fn func(old *UserData, updated UserData)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// OnDelete registers a callback for removed entries.
func (m *SSRCMap) OnDelete(fn func(UserData)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDelete = fn
}

// Update merges data into the entry for data.AudioSSRC. Empty fields in
// data keep the existing values.
func (m *SSRCMap) Update(data UserData) {
	m.upsert(data.AudioSSRC, func(entry *UserData) {
		if data.UserID != "" {
			entry.UserID = data.UserID
		}
		if data.VideoSSRC != 0 {
			entry.VideoSSRC = data.VideoSSRC
		}
	})
}

// SetVideo merges a video state event. A zero videoSSRC clears the user's
// video stream.
func (m *SSRCMap) SetVideo(userID string, audioSSRC, videoSSRC uint32) {
	m.upsert(audioSSRC, func(entry *UserData) {
		if userID != "" {
			entry.UserID = userID
		}
		entry.VideoSSRC = videoSSRC
	})
}

func (m *SSRCMap) upsert(audioSSRC uint32, merge func(*UserData)) {
	m.mu.Lock()
	existing, found := m.entries[audioSSRC]
	entry := existing
	entry.AudioSSRC = audioSSRC
	merge(&entry)
	m.entries[audioSSRC] = entry
	onCreate, onUpdate := m.onCreate, m.onUpdate
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "SSRCMap.upsert",
		"user_id":    entry.UserID,
		"audio_ssrc": entry.AudioSSRC,
		"video_ssrc": entry.VideoSSRC,
		"created":    !found,
	}).Debug("SSRC directory updated")

	var old *UserData
	if found {
		old = &existing
	} else if onCreate != nil {
		onCreate(entry)
	}
	if onUpdate != nil {
		onUpdate(old, entry)
	}
}

// Get returns the entry for an audio SSRC.
func (m *SSRCMap) Get(ssrc uint32) (UserData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[ssrc]
	return data, ok
}

// GetByUser returns the entry for userID.
func (m *SSRCMap) GetByUser(userID string) (UserData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, data := range m.entries {
		if data.UserID == userID {
			return data, true
		}
	}
	return UserData{}, false
}

// Delete removes the entry for an audio SSRC and returns it.
func (m *SSRCMap) Delete(ssrc uint32) (UserData, bool) {
	m.mu.Lock()
	data, ok := m.entries[ssrc]
	if ok {
		delete(m.entries, ssrc)
	}
	onDelete := m.onDelete
	m.mu.Unlock()

	if ok && onDelete != nil {
		onDelete(data)
	}
	return data, ok
}

// DeleteByUser removes the entry for userID and returns it.
func (m *SSRCMap) DeleteByUser(userID string) (UserData, bool) {
	m.mu.Lock()
	var (
		data UserData
		ok   bool
	)
	for ssrc, entry := range m.entries {
		if entry.UserID == userID {
			data, ok = entry, true
			delete(m.entries, ssrc)
			break
		}
	}
	onDelete := m.onDelete
	m.mu.Unlock()

	if ok && onDelete != nil {
		onDelete(data)
	}
	return data, ok
}

// Len returns the number of known senders.
func (m *SSRCMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
