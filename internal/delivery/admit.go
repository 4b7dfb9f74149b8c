package delivery

import (
	"context"

	"github.com/roach88/beacon/internal/fault"
	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/store"
)

// Reasons an event is refused at admission.
const (
	ReasonStoreNotReady  = "store_not_ready"
	ReasonUninitialized  = "uninitialized"
	ReasonTooLarge       = "db_too_large"
	ReasonEncodeFailed   = "encode_failed"
	ReasonStorageFailure = "storage_failure"
	ReasonInvalid        = "invalid"
	ReasonDisabled       = "disabled"
	ReasonNoSession      = "no_session"
)

// lifecycle categories pass the size valve.
var lifecycle = map[string]bool{
	payload.CategorySessionStart: true,
	payload.CategorySessionEnd:   true,
	payload.CategoryBusiness:     true,
}

// AddEventToStore merges fields over the current default annotations and
// buffers the result.
func (p *Pipeline) AddEventToStore(ctx context.Context, fields payload.Object) error {
	return p.admit(ctx, p.session.Annotations(), fields)
}

// admit writes base+fields as a new row. A session_end removes the
// session's snapshot; any other event refreshes it with base.
func (p *Pipeline) admit(ctx context.Context, base, fields payload.Object) error {
	category := fields.Category()

	if !p.store.Ready() {
		return p.block(ctx, category, ReasonStoreNotReady)
	}
	if !p.session.Initialized() {
		return p.block(ctx, category, ReasonUninitialized)
	}
	if !lifecycle[category] && p.store.TooLargeForEvents(ctx) {
		return p.block(ctx, category, ReasonTooLarge)
	}

	ev := base.Clone().Merge(fields)
	if _, err := payload.MarshalCanonical(ev); err != nil {
		p.logger.Warn("event cannot be encoded for upload", "category", category, "error", err)
		return p.block(ctx, category, ReasonEncodeFailed)
	}
	blob, err := payload.Encode(ev)
	if err != nil {
		p.block(ctx, category, ReasonEncodeFailed)
		return err
	}
	clientTS, _ := ev.Int64("client_ts")
	sessionID := ev.String("session_id")

	if err := p.store.InsertEvent(ctx, store.EventRecord{
		Status:    store.StatusNew,
		Category:  category,
		SessionID: sessionID,
		ClientTS:  clientTS,
		Payload:   blob,
	}); err != nil {
		p.block(ctx, category, ReasonStorageFailure)
		return err
	}
	p.metrics.Admitted(ctx, category)
	p.logger.Debug("event added to queue", "category", category, "event", ev)

	if category == payload.CategorySessionEnd {
		if err := p.store.DeleteSession(ctx, sessionID); err != nil {
			p.logger.Warn("failed to delete session snapshot", "session_id", sessionID, "error", err)
		}
		return nil
	}
	p.snapshot(ctx, sessionID, base)
	return nil
}

// snapshot upserts the open-session row used by crash recovery.
func (p *Pipeline) snapshot(ctx context.Context, sessionID string, annotations payload.Object) {
	if sessionID == "" {
		return
	}
	blob, err := payload.Encode(annotations)
	if err != nil {
		p.logger.Warn("failed to encode session snapshot", "session_id", sessionID, "error", err)
		return
	}
	if err := p.store.UpsertSession(ctx, store.SessionSnapshot{
		SessionID:   sessionID,
		StartedAt:   p.session.SessionStart(),
		Annotations: blob,
	}); err != nil {
		p.logger.Warn("failed to update session snapshot", "session_id", sessionID, "error", err)
	}
}

func (p *Pipeline) block(ctx context.Context, category, reason string) error {
	p.metrics.Blocked(ctx, category, reason)
	p.logger.Warn("could not add event", "category", category, "reason", reason)
	return fault.Validation("add event", "%s event blocked: %s", category, reason)
}
