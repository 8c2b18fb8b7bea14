package signal

import (
	"sync"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
)

type recorder struct {
	mu       sync.Mutex
	incoming []core.IncomingCall
	ringing  []domain.CallID
	answered []domain.CallID
	rejected []core.ReasonPayload
	ended    []core.ReasonPayload
	offers   []core.DescriptionPayload
	answers  []core.DescriptionPayload
	cands    []core.CandidatePayload
}

func (r *recorder) HandleIncoming(in core.IncomingCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incoming = append(r.incoming, in)
}

func (r *recorder) HandleRinging(id domain.CallID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ringing = append(r.ringing, id)
}

func (r *recorder) HandleAnswered(id domain.CallID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answered = append(r.answered, id)
}

func (r *recorder) HandleRejected(p core.ReasonPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, p)
}

func (r *recorder) HandleEnded(p core.ReasonPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, p)
}

func (r *recorder) HandleOffer(p core.DescriptionPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers = append(r.offers, p)
}

func (r *recorder) HandleAnswer(p core.DescriptionPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, p)
}

func (r *recorder) HandleCandidate(p core.CandidatePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cands = append(r.cands, p)
}

func (r *recorder) incomingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.incoming)
}

type fakePresence struct {
	mu     sync.Mutex
	users  map[domain.UserID]domain.UserRef
	clears int
}

func newFakePresence() *fakePresence {
	return &fakePresence{users: map[domain.UserID]domain.UserRef{}}
}

func (p *fakePresence) Replace(users []domain.UserRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = map[domain.UserID]domain.UserRef{}
	for _, u := range users {
		if !u.IsZero() {
			p.users[u.ID] = u
		}
	}
}

func (p *fakePresence) SetOnline(u domain.UserRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[u.ID] = u
}

func (p *fakePresence) SetOffline(id domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.users, id)
}

func (p *fakePresence) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = map[domain.UserID]domain.UserRef{}
	p.clears++
}

func (p *fakePresence) get(id domain.UserID) (domain.UserRef, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	return u, ok
}

func (p *fakePresence) clearCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}
