package validate

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/roach88/beacon/internal/fault"
	"github.com/roach88/beacon/internal/payload"
)

// Host input field names, per event category.
const (
	FieldCurrency      = "currency"
	FieldAmount        = "amount"
	FieldItemType      = "item_type"
	FieldItemID        = "item_id"
	FieldCartType      = "cart_type"
	FieldFlowType      = "flow_type"
	FieldStatus        = "status"
	FieldProgression01 = "progression_01"
	FieldProgression02 = "progression_02"
	FieldProgression03 = "progression_03"
	FieldScore         = "score"
	FieldEventID       = "event_id"
	FieldValue         = "value"
	FieldSeverity      = "severity"
	FieldMessage       = "message"
)

// Resource flow directions.
const (
	FlowSource = "source"
	FlowSink   = "sink"
)

// Progression statuses.
const (
	ProgressionStart    = "start"
	ProgressionComplete = "complete"
	ProgressionFail     = "fail"
)

// Rules validates host events against the configured resource lists.
type Rules struct {
	Currencies []string
	ItemTypes  []string
}

// Valid reports whether fields form an acceptable event of category.
func (r Rules) Valid(category string, fields payload.Object) bool {
	return r.Check(category, fields) == nil
}

// Check returns the first problem with fields, or nil.
func (r Rules) Check(category string, fields payload.Object) error {
	switch category {
	case payload.CategoryBusiness:
		amount, ok := fields.Int64(FieldAmount)
		if !ok {
			return fault.Validation(FieldAmount, "must be a whole number of minor units")
		}
		return Business(fields.String(FieldCurrency), amount,
			fields.String(FieldItemType), fields.String(FieldItemID), fields.String(FieldCartType))
	case payload.CategoryResource:
		amount, ok := fields.Float64(FieldAmount)
		if !ok {
			return fault.Validation(FieldAmount, "must be a finite number")
		}
		return Resource(fields.String(FieldFlowType), fields.String(FieldCurrency), amount,
			fields.String(FieldItemType), fields.String(FieldItemID), r.Currencies, r.ItemTypes)
	case payload.CategoryProgression:
		if fields.Has(FieldScore) {
			if _, ok := fields.Float64(FieldScore); !ok {
				return fault.Validation(FieldScore, "must be a finite number")
			}
		}
		return Progression(fields.String(FieldStatus), fields.String(FieldProgression01),
			fields.String(FieldProgression02), fields.String(FieldProgression03))
	case payload.CategoryDesign:
		if fields.Has(FieldValue) {
			if _, ok := fields.Float64(FieldValue); !ok {
				return fault.Validation(FieldValue, "must be a finite number")
			}
		}
		return Design(fields.String(FieldEventID))
	case payload.CategoryError:
		return ErrorEvent(fields.String(FieldSeverity), fields.String(FieldMessage))
	default:
		return fault.Validation("category", "%q cannot be added by the host", category)
	}
}

// Business checks a real-money purchase.
func Business(currency string, amount int64, itemType, itemID, cartType string) error {
	if err := Currency(currency); err != nil {
		return err
	}
	if amount < 0 {
		return fault.Validation(FieldAmount, "must not be negative")
	}
	if err := ShortString(FieldCartType, cartType, true); err != nil {
		return err
	}
	if err := EventPart(FieldItemType, itemType); err != nil {
		return err
	}
	return EventPart(FieldItemID, itemID)
}

// Resource checks an in-game currency flow against the configured lists.
func Resource(flowType, currency string, amount float64, itemType, itemID string, currencies, itemTypes []string) error {
	if flowType != FlowSource && flowType != FlowSink {
		return fault.Validation(FieldFlowType, "%q is not source or sink", flowType)
	}
	if !slices.Contains(currencies, currency) {
		return fault.Validation(FieldCurrency, "%q is not a configured resource currency", currency)
	}
	if amount <= 0 || !payload.Finite(amount) {
		return fault.Validation(FieldAmount, "must be positive")
	}
	if err := EventPart(FieldItemType, itemType); err != nil {
		return err
	}
	if !slices.Contains(itemTypes, itemType) {
		return fault.Validation(FieldItemType, "%q is not a configured resource item type", itemType)
	}
	return EventPart(FieldItemID, itemID)
}

// Progression checks a progression status and its up to three levels.
func Progression(status, p1, p2, p3 string) error {
	switch status {
	case ProgressionStart, ProgressionComplete, ProgressionFail:
	default:
		return fault.Validation(FieldStatus, "%q is not start, complete or fail", status)
	}
	if p1 == "" {
		return fault.Validation(FieldProgression01, "is required")
	}
	if p3 != "" && p2 == "" {
		return fault.Validation(FieldProgression02, "is required when progression_03 is set")
	}
	levels := []struct{ field, value string }{
		{FieldProgression01, p1},
		{FieldProgression02, p2},
		{FieldProgression03, p3},
	}
	for _, l := range levels {
		if l.value == "" {
			continue
		}
		if err := EventPart(l.field, l.value); err != nil {
			return err
		}
	}
	return nil
}

// Design checks a colon separated design event id of 1-5 parts.
func Design(eventID string) error {
	parts := strings.Split(eventID, ":")
	if len(parts) > MaxDesignParts {
		return fault.Validation(FieldEventID, "has more than %d parts", MaxDesignParts)
	}
	for _, p := range parts {
		if err := EventPart(FieldEventID, p); err != nil {
			return err
		}
	}
	return nil
}

// ErrorEvent checks an error severity and message.
func ErrorEvent(severity, message string) error {
	if !slices.Contains(Severities, severity) {
		return fault.Validation(FieldSeverity, "%q is not one of %v", severity, Severities)
	}
	if utf8.RuneCountInString(message) > MaxErrorMessage {
		return fault.Validation(FieldMessage, "longer than %d characters", MaxErrorMessage)
	}
	return nil
}

// CleanCustomFields returns the acceptable subset of host custom fields:
// at most 50 entries in key order, keys matching [A-Za-z0-9_]{1,64},
// strings of 1-256 characters and finite numbers. Dropped entries are
// reported by key.
func CleanCustomFields(fields payload.Object) (payload.Object, []string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := payload.Object{}
	var dropped []string
	for _, k := range keys {
		if len(out) >= MaxCustomFields || !customFieldKeyRe.MatchString(k) {
			dropped = append(dropped, k)
			continue
		}
		switch v := fields[k].(type) {
		case string:
			if n := utf8.RuneCountInString(v); n == 0 || n > MaxCustomFieldString {
				dropped = append(dropped, k)
				continue
			}
			out[k] = v
		case int, int64:
			out[k] = v
		case float64:
			if !payload.Finite(v) {
				dropped = append(dropped, k)
				continue
			}
			out[k] = v
		default:
			dropped = append(dropped, k)
		}
	}
	return out, dropped
}
