package ticket

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket
	claims  map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]*Ticket),
		claims:  make(map[string]string),
	}
}

func (s *MemoryStore) Register(t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tickets[t.ChannelRef]; exists {
		return ErrDuplicateChannel
	}
	s.tickets[t.ChannelRef] = copyTicket(t)
	return nil
}

func (s *MemoryStore) Get(channelRef string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[channelRef]
	if !ok {
		return nil, ErrTicketNotFound
	}
	out := copyTicket(t)
	out.ClaimantID = s.claims[channelRef]
	return out, nil
}

func (s *MemoryStore) SetClaim(channelRef, staffID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[channelRef]; !ok {
		return ErrTicketNotFound
	}
	if holder, claimed := s.claims[channelRef]; claimed {
		return &AlreadyClaimedError{ClaimantID: holder}
	}
	s.claims[channelRef] = staffID
	return nil
}

func (s *MemoryStore) ClearClaim(channelRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[channelRef]; !ok {
		return ErrTicketNotFound
	}
	if _, claimed := s.claims[channelRef]; !claimed {
		return ErrNotClaimed
	}
	delete(s.claims, channelRef)
	return nil
}

func (s *MemoryStore) Remove(channelRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tickets, channelRef)
	delete(s.claims, channelRef)
}

func (s *MemoryStore) List() []*Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Ticket, 0, len(s.tickets))
	for ref, t := range s.tickets {
		c := copyTicket(t)
		c.ClaimantID = s.claims[ref]
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ChannelRef < out[j].ChannelRef
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}

func (s *MemoryStore) Export() (map[string]*Ticket, map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make(map[string]*Ticket, len(s.tickets))
	for ref, t := range s.tickets {
		tickets[ref] = copyTicket(t)
	}
	claims := make(map[string]string, len(s.claims))
	for ref, staff := range s.claims {
		claims[ref] = staff
	}
	return tickets, claims
}

func (s *MemoryStore) Import(tickets map[string]*Ticket, claims map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickets = make(map[string]*Ticket, len(tickets))
	for ref, t := range tickets {
		s.tickets[ref] = copyTicket(t)
	}
	s.claims = make(map[string]string, len(claims))
	for ref, staff := range claims {
		if _, ok := s.tickets[ref]; !ok {
			continue
		}
		s.claims[ref] = staff
	}
}

// copyTicket returns a deep copy so callers cannot mutate stored state.
func copyTicket(t *Ticket) *Ticket {
	c := *t
	if t.Payload != nil {
		c.Payload = make(map[string]string, len(t.Payload))
		for k, v := range t.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}
