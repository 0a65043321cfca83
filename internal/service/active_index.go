package service

import (
	"sync"
	"time"

	"github.com/mates-hr/screenshare-server-go/internal/model"
)

// ActiveEntry is the in-memory record of an ACTIVE session, used for fast
// membership lookups during signaling.
type ActiveEntry struct {
	RequesterID string
	TargetID    string
	RoomID      string
	StartedAt   time.Time
}

func (e *ActiveEntry) IsMember(userID string) bool {
	return e.RequesterID == userID || e.TargetID == userID
}

// ActiveIndex is a process-local cache of ACTIVE sessions keyed by session id.
// It is not authoritative: every state-changing operation re-reads persisted
// status first, and the index is rebuilt from ACTIVE rows on process start.
type ActiveIndex struct {
	mu      sync.RWMutex
	entries map[string]*ActiveEntry
}

func NewActiveIndex() *ActiveIndex {
	return &ActiveIndex{entries: make(map[string]*ActiveEntry)}
}

func (i *ActiveIndex) Put(sessionID string, entry *ActiveEntry) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[sessionID] = entry
}

func (i *ActiveIndex) Get(sessionID string) (*ActiveEntry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	entry, ok := i.entries[sessionID]
	return entry, ok
}

func (i *ActiveIndex) Remove(sessionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, sessionID)
}

func (i *ActiveIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Rebuild replaces the index contents with the given ACTIVE sessions.
func (i *ActiveIndex) Rebuild(sessions []model.ScreenShareSession) {
	entries := make(map[string]*ActiveEntry, len(sessions))
	for _, s := range sessions {
		entry := &ActiveEntry{
			RequesterID: s.RequesterID,
			TargetID:    s.TargetID,
			RoomID:      s.RoomID,
		}
		if s.StartedAt != nil {
			entry.StartedAt = *s.StartedAt
		}
		entries[s.ID] = entry
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = entries
}
