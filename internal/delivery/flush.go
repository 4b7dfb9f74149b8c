package delivery

import (
	"context"
	"encoding/json"

	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/transport"
)

// FlushResult summarizes one flush cycle.
type FlushResult struct {
	Claimed   int
	Outcome   transport.Outcome
	Deleted   int64
	Released  int64
	Recovered int
	Rejected  int
}

// Flush runs one flush cycle. An empty category flushes every category.
// With cleanup set, orphaned claims are reset and sessions that ended by
// process death get a synthesized session_end first.
func (p *Pipeline) Flush(ctx context.Context, category string, cleanup bool) FlushResult {
	var res FlushResult
	started := p.clock.Now()

	if cleanup {
		if n, err := p.store.ResetClaims(ctx); err == nil && n > 0 {
			p.logger.Info("reset orphaned claims", "count", n)
		}
		res.Recovered = p.fixMissingSessionEnds(ctx)
	}

	token := p.ids.Generate()
	records, err := p.store.ClaimBatch(ctx, category, token, p.batchSize)
	if err != nil {
		return res
	}
	if len(records) == 0 {
		p.logger.Debug("event queue: no events to send", "category", category)
		return res
	}
	res.Claimed = len(records)

	batch := make([]payload.Object, 0, len(records))
	for _, rec := range records {
		ev, err := payload.Decode(rec.Payload)
		if err != nil || len(ev) == 0 {
			p.logger.Warn("skipping undecodable event", "row", rec.RowID, "error", err)
			continue
		}
		batch = append(batch, ev)
	}

	if len(batch) == 0 {
		res.Deleted, _ = p.store.DeleteClaimed(ctx, token)
		return res
	}

	p.logger.Info("event queue: sending events", "count", len(batch), "category", category)
	outcome, body := p.transport.PostEvents(ctx, batch)
	res.Outcome = outcome
	p.resolve(ctx, token, outcome, body, len(batch), &res)

	p.heartbeat(ctx)
	p.metrics.Flushed(ctx, p.clock.Now().Sub(started), outcome.String())
	return res
}

// resolve deletes or releases the claimed rows according to outcome.
func (p *Pipeline) resolve(ctx context.Context, token string, outcome transport.Outcome, body []byte, sent int, res *FlushResult) {
	switch {
	case outcome.Success():
		res.Deleted, _ = p.store.DeleteClaimed(ctx, token)
		p.metrics.Sent(ctx, sent)
		p.logger.Info("event queue: events sent", "count", sent)

	case outcome.Retryable():
		res.Released, _ = p.store.ReleaseClaimed(ctx, token)
		p.metrics.Retried(ctx, int(res.Released))
		p.logger.Warn("event queue: failed to send events, retrying next time", "outcome", outcome.String())

	case outcome.Definitive():
		if outcome == transport.BadRequest {
			res.Rejected = rejectedCount(body)
		}
		if res.Rejected > 0 {
			p.logger.Warn("event queue: events failed collector validation",
				"count", sent, "rejected", res.Rejected)
		} else {
			p.logger.Warn("event queue: failed to send events", "outcome", outcome.String())
		}
		res.Deleted, _ = p.store.DeleteClaimed(ctx, token)
		p.metrics.Dropped(ctx, int(res.Deleted), outcome.String())
	}
}

// rejectedCount reads a BadRequest body listing per-event validation
// failures. Any other shape counts as zero.
func rejectedCount(body []byte) int {
	var rejected []json.RawMessage
	if err := json.Unmarshal(body, &rejected); err != nil {
		return 0
	}
	return len(rejected)
}

// fixMissingSessionEnds synthesizes a session_end for every snapshot
// other than the open session's and admits it with the snapshot's
// annotations.
func (p *Pipeline) fixMissingSessionEnds(ctx context.Context) int {
	snaps, err := p.store.OpenSessions(ctx, p.session.SessionID())
	if err != nil || len(snaps) == 0 {
		return 0
	}
	p.logger.Info("sessions located with missing session_end", "count", len(snaps))

	fixed := 0
	for _, snap := range snaps {
		base, err := payload.Decode(snap.Annotations)
		if err != nil {
			p.logger.Warn("dropping unreadable session snapshot", "session_id", snap.SessionID, "error", err)
			_ = p.store.DeleteSession(ctx, snap.SessionID)
			continue
		}
		lastTS, _ := base.Int64("client_ts")
		length := max(0, lastTS-snap.StartedAt)
		p.logger.Debug("missing session_end length", "session_id", snap.SessionID, "length", length)

		base["session_id"] = snap.SessionID
		fields := payload.Object{
			"category": payload.CategorySessionEnd,
			"length":   length,
		}
		if err := p.admit(ctx, base, fields); err == nil {
			fixed++
		}
	}
	return fixed
}

// heartbeat refreshes the open session's snapshot.
func (p *Pipeline) heartbeat(ctx context.Context) {
	if !p.session.SessionIsStarted() {
		return
	}
	p.snapshot(ctx, p.session.SessionID(), p.session.Annotations())
}
