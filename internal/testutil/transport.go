package testutil

import (
	"context"
	"sync"

	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/transport"
)

// InitReply is one scripted answer to PostInit.
type InitReply struct {
	Outcome transport.Outcome
	Doc     *transport.ConfigDocument
}

// EventsReply is one scripted answer to PostEvents.
type EventsReply struct {
	Outcome transport.Outcome
	Body    []byte
}

// ScriptedTransport implements transport.Transport from queues of canned
// replies. Each call consumes the head of its queue; the last reply is
// sticky and keeps answering once the queue is down to one entry.
//
// With nothing scripted, PostInit answers NoResponse (offline start) and
// PostEvents answers OK.
//
// Thread-safety: all methods are safe for concurrent use.
type ScriptedTransport struct {
	mu      sync.Mutex
	inits   []InitReply
	events  []EventsReply
	initReq []transport.InitRequest
	batches [][]payload.Object
}

var _ transport.Transport = (*ScriptedTransport)(nil)

// NewScriptedTransport returns a transport with the default replies.
func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{
		inits:  []InitReply{{Outcome: transport.NoResponse}},
		events: []EventsReply{{Outcome: transport.OK}},
	}
}

// ScriptInit replaces the PostInit queue.
func (s *ScriptedTransport) ScriptInit(replies ...InitReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits = append([]InitReply(nil), replies...)
}

// ScriptEvents replaces the PostEvents queue.
func (s *ScriptedTransport) ScriptEvents(replies ...EventsReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append([]EventsReply(nil), replies...)
}

// PostInit records req and returns the next scripted init reply.
func (s *ScriptedTransport) PostInit(_ context.Context, req transport.InitRequest) (transport.Outcome, *transport.ConfigDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initReq = append(s.initReq, req)
	if len(s.inits) == 0 {
		return transport.NoResponse, nil
	}
	r := s.inits[0]
	if len(s.inits) > 1 {
		s.inits = s.inits[1:]
	}
	if r.Doc != nil {
		doc := *r.Doc
		return r.Outcome, &doc
	}
	return r.Outcome, nil
}

// PostEvents records a copy of the batch and returns the next scripted
// events reply.
func (s *ScriptedTransport) PostEvents(_ context.Context, events []payload.Object) (transport.Outcome, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]payload.Object, len(events))
	for i, e := range events {
		batch[i] = e.Clone()
	}
	s.batches = append(s.batches, batch)

	if len(s.events) == 0 {
		return transport.OK, nil
	}
	r := s.events[0]
	if len(s.events) > 1 {
		s.events = s.events[1:]
	}
	return r.Outcome, r.Body
}

// InitRequests returns every PostInit request seen so far.
func (s *ScriptedTransport) InitRequests() []transport.InitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.InitRequest(nil), s.initReq...)
}

// Batches returns every PostEvents batch seen so far.
func (s *ScriptedTransport) Batches() [][]payload.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]payload.Object(nil), s.batches...)
}

// Sent flattens Batches into one slice in send order.
func (s *ScriptedTransport) Sent() []payload.Object {
	var out []payload.Object
	for _, b := range s.Batches() {
		out = append(out, b...)
	}
	return out
}

// SentCategories lists the category of every sent event in send order.
func (s *ScriptedTransport) SentCategories() []string {
	var out []string
	for _, e := range s.Sent() {
		out = append(out, e.Category())
	}
	return out
}

// Reset forgets recorded requests but keeps the scripts.
func (s *ScriptedTransport) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initReq = nil
	s.batches = nil
}
