package services

import (
	"livon-client/internal/core/domain"
	"sync"
)

// Store is the local view of one room. Entries stay in server arrival order;
// nothing is ever sorted by timestamp.
type Store struct {
	mu       sync.RWMutex
	roomID   string
	messages []domain.Message
	seen     map[string]struct{}
	echoed   map[string]struct{}
	presence []string
}

func NewStore(roomID string) *Store {
	return &Store{roomID: roomID, seen: make(map[string]struct{}), echoed: make(map[string]struct{})}
}

func (s *Store) RoomID() string { return s.roomID }

// Seed loads the backlog. Entries already present by server id are skipped.
func (s *Store) Seed(history []domain.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, m := range history {
		if m.ID != "" {
			if _, ok := s.seen[m.ID]; ok {
				continue
			}
			s.seen[m.ID] = struct{}{}
		}
		m.Pending = false
		s.messages = append(s.messages, m.Clone())
		added++
	}
	return added
}

// AppendPending adds an optimistic entry that has no server id yet. It
// reports false when the echo for the same marker has already arrived.
func (s *Store) AppendPending(m domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.echoed[m.ClientMsgID]; ok && m.ClientMsgID != "" {
		return false
	}
	m.ID = ""
	m.Pending = true
	s.messages = append(s.messages, m.Clone())
	return true
}

// RemovePending drops the optimistic entry for clientMsgID, if it is still
// unconfirmed.
func (s *Store) RemovePending(clientMsgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.messages {
		if e.Pending && e.ClientMsgID == clientMsgID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true
		}
	}
	return false
}

// ApplyMessage records a broker message. A matching optimistic entry is
// replaced by the echo, which takes the echo's position in the sequence.
// It reports false for a re-delivered server id.
func (s *Store) ApplyMessage(m domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID != "" {
		if _, ok := s.seen[m.ID]; ok {
			return false
		}
		s.seen[m.ID] = struct{}{}
	}
	if i := s.pendingIndexLocked(m); i >= 0 {
		pending := s.messages[i]
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		if m.ClientMsgID == "" {
			m.ClientMsgID = pending.ClientMsgID
		}
	}
	if m.ClientMsgID != "" {
		s.echoed[m.ClientMsgID] = struct{}{}
	}
	m.Pending = false
	s.messages = append(s.messages, m.Clone())
	return true
}

func (s *Store) pendingIndexLocked(m domain.Message) int {
	if m.ClientMsgID != "" {
		for i, e := range s.messages {
			if e.Pending && e.ClientMsgID == m.ClientMsgID {
				return i
			}
		}
		return -1
	}
	// echo without a marker: oldest pending entry with the same sender and content
	for i, e := range s.messages {
		if e.Pending && e.Sender == m.Sender && e.Content == m.Content {
			return i
		}
	}
	return -1
}

// ApplyReceipt upgrades the delivery status of messageID and merges readers.
// Statuses never move backwards. Unknown ids are ignored.
func (s *Store) ApplyReceipt(messageID string, status domain.DeliveryStatus, readers ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := &s.messages[i]
		if m.ID != messageID || m.ID == "" {
			continue
		}
		changed := false
		if status > m.DeliveryStatus {
			m.DeliveryStatus = status
			changed = true
		}
		for _, u := range readers {
			if u == "" {
				continue
			}
			if m.ReadBy == nil {
				m.ReadBy = make(map[string]struct{})
			}
			if _, ok := m.ReadBy[u]; !ok {
				m.ReadBy[u] = struct{}{}
				changed = true
			}
		}
		return changed
	}
	return false
}

// ReplacePresence swaps the whole presence set for snapshot.
func (s *Store) ReplacePresence(snapshot []string) []string {
	seen := make(map[string]struct{}, len(snapshot))
	next := make([]string, 0, len(snapshot))
	for _, u := range snapshot {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		next = append(next, u)
	}
	s.mu.Lock()
	s.presence = next
	s.mu.Unlock()
	return append([]string(nil), next...)
}

// Messages returns a copy of the ordered sequence.
func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

func (s *Store) Presence() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.presence...)
}
