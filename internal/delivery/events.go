package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/validate"
)

// AddSessionStart buffers the session start event and flushes it right
// away.
func (p *Pipeline) AddSessionStart(ctx context.Context) {
	ev := payload.Object{"category": payload.CategorySessionStart}
	p.addDimensions(ev)
	if err := p.AddEventToStore(ctx, ev); err != nil {
		return
	}
	p.logger.Info("add session start event", "session_id", p.session.SessionID())
	p.Flush(ctx, payload.CategorySessionStart, false)
}

// AddSessionEnd buffers the session end event and flushes everything.
func (p *Pipeline) AddSessionEnd(ctx context.Context, length int64) {
	ev := payload.Object{
		"category": payload.CategorySessionEnd,
		"length":   max(0, length),
	}
	p.addDimensions(ev)
	if err := p.AddEventToStore(ctx, ev); err != nil {
		return
	}
	p.logger.Info("add session end event", "session_id", p.session.SessionID(), "length", length)
	p.Flush(ctx, "", false)
}

// AddEvent validates a host event of category, shapes it the way the
// collector expects and buffers it. Rejected events are reported as
// sdk_error and the validation error is returned.
func (p *Pipeline) AddEvent(ctx context.Context, category string, fields payload.Object) error {
	if !p.session.Initialized() {
		return p.block(ctx, category, ReasonUninitialized)
	}
	if !p.session.Enabled() {
		return p.block(ctx, category, ReasonDisabled)
	}
	if !p.session.SessionIsStarted() {
		return p.block(ctx, category, ReasonNoSession)
	}

	if err := p.rules.Check(category, fields); err != nil {
		p.metrics.Blocked(ctx, category, ReasonInvalid)
		p.logger.Warn("event rejected", "category", category, "error", err)
		p.reporter.Report(ctx, ErrorRejected, err.Error())
		return err
	}

	custom, dropped := validate.CleanCustomFields(customFields(fields))
	if len(dropped) > 0 {
		p.logger.Warn("dropped invalid custom fields", "category", category, "fields", dropped)
	}

	ev, err := p.build(ctx, category, fields)
	if err != nil {
		return err
	}
	if len(custom) > 0 {
		ev["custom_fields"] = custom
	}
	return p.AddEventToStore(ctx, ev)
}

// build turns validated host fields into the stored event shape.
func (p *Pipeline) build(ctx context.Context, category string, f payload.Object) (payload.Object, error) {
	ev := payload.Object{"category": category}

	switch category {
	case payload.CategoryBusiness:
		amount, _ := f.Int64(validate.FieldAmount)
		ev["event_id"] = f.String(validate.FieldItemType) + ":" + f.String(validate.FieldItemID)
		ev["currency"] = f.String(validate.FieldCurrency)
		ev["amount"] = amount
		ev["transaction_num"] = p.session.NextTransactionNum(ctx)
		if cart := f.String(validate.FieldCartType); cart != "" {
			ev["cart_type"] = cart
		}
		p.addDimensions(ev)

	case payload.CategoryResource:
		amount, _ := f.Float64(validate.FieldAmount)
		flow := f.String(validate.FieldFlowType)
		if flow == validate.FlowSink {
			amount = -amount
		}
		ev["event_id"] = strings.Join([]string{
			titleCase(flow),
			f.String(validate.FieldCurrency),
			f.String(validate.FieldItemType),
			f.String(validate.FieldItemID),
		}, ":")
		ev["amount"] = amount
		p.addDimensions(ev)

	case payload.CategoryProgression:
		status := f.String(validate.FieldStatus)
		id := progressionID(f)
		ev["event_id"] = titleCase(status) + ":" + id
		if status != validate.ProgressionStart {
			if score, ok := f.Float64(validate.FieldScore); ok {
				ev["score"] = score
			}
		}
		switch status {
		case validate.ProgressionFail:
			p.session.IncrementProgressionTries(ctx, id)
		case validate.ProgressionComplete:
			ev["attempt_num"] = int64(p.session.IncrementProgressionTries(ctx, id))
			p.session.ClearProgressionTries(ctx, id)
		}
		p.addDimensions(ev)

	case payload.CategoryDesign:
		ev["event_id"] = f.String(validate.FieldEventID)
		if v, ok := f.Float64(validate.FieldValue); ok {
			ev["value"] = v
		}

	case payload.CategoryError:
		ev["severity"] = f.String(validate.FieldSeverity)
		ev["message"] = f.String(validate.FieldMessage)

	default:
		return nil, fmt.Errorf("no builder for category %q", category)
	}
	return ev, nil
}

// progressionID joins the non-empty progression levels with ":".
func progressionID(f payload.Object) string {
	id := f.String(validate.FieldProgression01)
	if p2 := f.String(validate.FieldProgression02); p2 != "" {
		id += ":" + p2
		if p3 := f.String(validate.FieldProgression03); p3 != "" {
			id += ":" + p3
		}
	}
	return id
}

// customFields extracts the nested "custom_fields" object, if any.
func customFields(f payload.Object) payload.Object {
	switch v := f["custom_fields"].(type) {
	case payload.Object:
		return v
	case map[string]any:
		return payload.Object(v)
	default:
		return nil
	}
}

func (p *Pipeline) addDimensions(ev payload.Object) {
	for i, v := range p.session.Dimensions() {
		if v != "" {
			ev[fmt.Sprintf("custom_%02d", i+1)] = v
		}
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
