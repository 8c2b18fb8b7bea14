package signal

import (
	"fmt"
	"testing"

	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/webrtc/v4"
)

func newDispatchClient() (*Client, *recorder, *fakePresence) {
	p := newFakePresence()
	c := NewClient(Config{URL: "ws://unused"}, p)
	r := &recorder{}
	c.SetHandler(r)
	return c, r, p
}

func TestDispatchCallEvents(t *testing.T) {
	c, r, _ := newDispatchClient()

	msgs := []string{
		`{"event":"call:incoming","data":{"callId":"c1","callType":"video","callerInfo":{"_id":"u1","name":"Ann","avatar":"a.png"}}}`,
		`{"event":"call:ringing","data":{"callId":"c1"}}`,
		`{"event":"call:answered","data":{"callId":"c1"}}`,
		`{"event":"call:rejected","data":{"callId":"c1","reason":"busy"}}`,
		`{"event":"call:ended","data":{"callId":"c1","reason":"no-answer"}}`,
		`{"event":"webrtc:offer","data":{"callId":"c1","description":{"type":"offer","sdp":"v=0"}}}`,
		`{"event":"webrtc:answer","data":{"callId":"c1","description":{"type":"answer","sdp":"v=0"}}}`,
		`{"event":"webrtc:ice-candidate","data":{"callId":"c1","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0"}}}`,
	}
	for _, m := range msgs {
		c.dispatch([]byte(m))
	}

	if len(r.incoming) != 1 {
		t.Fatalf("incoming = %d", len(r.incoming))
	}
	in := r.incoming[0]
	if in.CallID != "c1" || in.CallType != domain.CallTypeVideo || in.Caller.ID != "u1" || in.Caller.DisplayName != "Ann" || in.Caller.AvatarRef != "a.png" {
		t.Fatalf("unexpected incoming %+v", in)
	}
	if len(r.ringing) != 1 || len(r.answered) != 1 {
		t.Fatal("ringing/answered not dispatched")
	}
	if len(r.rejected) != 1 || r.rejected[0].Reason != domain.EndReasonBusy {
		t.Fatalf("rejected = %+v", r.rejected)
	}
	if len(r.ended) != 1 || r.ended[0].Reason != domain.EndReasonNoAnswer {
		t.Fatalf("ended = %+v", r.ended)
	}
	if len(r.offers) != 1 || r.offers[0].Description.Type != webrtc.SDPTypeOffer {
		t.Fatalf("offers = %+v", r.offers)
	}
	if len(r.answers) != 1 || r.answers[0].Description.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("answers = %+v", r.answers)
	}
	if len(r.cands) != 1 || r.cands[0].Candidate.SDPMid == nil || *r.cands[0].Candidate.SDPMid != "0" {
		t.Fatalf("candidates = %+v", r.cands)
	}
}

func TestDispatchDropsMalformed(t *testing.T) {
	c, r, _ := newDispatchClient()
	for _, m := range []string{
		`not json`,
		`{"event":"call:incoming","data":{"callId":"c1","callType":"fax","callerInfo":"u1"}}`,
		`{"event":"call:incoming","data":{"callId":"","callType":"voice","callerInfo":"u1"}}`,
		`{"event":"call:incoming","data":{"callId":"c2","callType":"voice","callerInfo":{"name":"no id"}}}`,
		`{"event":"call:ringing","data":"oops"}`,
		`{"event":"mystery","data":{}}`,
	} {
		c.dispatch([]byte(m))
	}
	if len(r.incoming) != 0 || len(r.ringing) != 0 {
		t.Fatalf("malformed messages were dispatched: %+v", r)
	}
}

func TestDispatchPresence(t *testing.T) {
	c, _, p := newDispatchClient()

	c.dispatch([]byte(`{"event":"users:online","data":{"users":["u1",{"id":"u2","displayName":"Bo"},{"name":"broken"}]}}`))
	if _, ok := p.get("u1"); !ok {
		t.Fatal("bare id user missing")
	}
	if u, ok := p.get("u2"); !ok || u.DisplayName != "Bo" {
		t.Fatalf("u2 = %+v, %v", u, ok)
	}

	c.dispatch([]byte(`{"event":"user:online","data":{"user":{"_id":"u3","username":"cat"}}}`))
	if u, ok := p.get("u3"); !ok || u.DisplayName != "cat" {
		t.Fatalf("u3 = %+v, %v", u, ok)
	}

	c.dispatch([]byte(`{"event":"user:offline","data":{"userId":"u1"}}`))
	if _, ok := p.get("u1"); ok {
		t.Fatal("u1 still online")
	}
}

func TestIncomingFloodIsRejected(t *testing.T) {
	c, r, _ := newDispatchClient()
	for i := 0; i < 10; i++ {
		c.dispatch(incomingFrom("spammer", fmt.Sprintf("c%d", i)))
	}
	if n := r.incomingCount(); n != 5 {
		t.Fatalf("dispatched %d incoming calls, want the default limit of 5", n)
	}
}

func TestIncomingRedeliveryPassesLimit(t *testing.T) {
	c, r, _ := newDispatchClient()
	for i := 0; i < 5; i++ {
		c.dispatch(incomingFrom("alice", fmt.Sprintf("c%d", i)))
	}
	c.dispatch(incomingFrom("alice", "c4"))
	if n := r.incomingCount(); n != 6 {
		t.Fatalf("dispatched %d incoming calls, want the redelivery forwarded", n)
	}
	c.dispatch(incomingFrom("alice", "c5"))
	if n := r.incomingCount(); n != 6 {
		t.Fatalf("dispatched %d incoming calls, new call over the limit forwarded", n)
	}
}

func incomingFrom(caller, id string) []byte {
	return []byte(fmt.Sprintf(`{"event":"call:incoming","data":{"callId":%q,"callType":"voice","callerInfo":%q}}`, id, caller))
}
