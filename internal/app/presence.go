package app

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dkeye/Dial/internal/domain"
	"github.com/rs/zerolog/log"
)

// Presence is the set of users the signaling server reports online.
// The local user is never listed.
type Presence struct {
	self domain.UserID

	mu     sync.RWMutex
	online map[domain.UserID]domain.UserRef
}

func NewPresence(self domain.UserID) *Presence {
	return &Presence{
		self:   self,
		online: make(map[domain.UserID]domain.UserRef),
	}
}

// Replace swaps in a full snapshot, as sent on users:online.
func (p *Presence) Replace(users []domain.UserRef) {
	next := make(map[domain.UserID]domain.UserRef, len(users))
	for _, u := range users {
		if u.IsZero() || u.ID == p.self {
			continue
		}
		next[u.ID] = u
	}
	p.mu.Lock()
	p.online = next
	p.mu.Unlock()
	log.Info().Str("module", "app.presence").Int("online", len(next)).Msg("presence replaced")
}

func (p *Presence) SetOnline(u domain.UserRef) {
	if u.IsZero() || u.ID == p.self {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[u.ID] = u
	log.Debug().Str("module", "app.presence").Str("user_id", string(u.ID)).Msg("user online")
}

func (p *Presence) SetOffline(id domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, id)
	log.Debug().Str("module", "app.presence").Str("user_id", string(id)).Msg("user offline")
}

// Clear forgets everyone; used when the signaling connection drops.
func (p *Presence) Clear() {
	p.Replace(nil)
}

func (p *Presence) Lookup(id domain.UserID) (domain.UserRef, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.online[id]
	return u, ok
}

// List returns online users ordered by display name.
func (p *Presence) List() []domain.UserRef {
	p.mu.RLock()
	out := make([]domain.UserRef, 0, len(p.online))
	for _, u := range p.online {
		out = append(out, u)
	}
	p.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.UserRef) int {
		if c := cmp.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
