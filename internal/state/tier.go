package state

import (
	"fmt"

	"github.com/roach88/beacon/internal/transport"
)

// Tier names where the effective config came from.
type Tier int

const (
	TierDefault Tier = iota
	TierCached
	TierLive
)

func (t Tier) String() string {
	switch t {
	case TierLive:
		return "live"
	case TierCached:
		return "cached"
	case TierDefault:
		return "default"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Resolved is the effective config and its tier. Doc is nil only for
// TierDefault.
type Resolved struct {
	Tier Tier
	Doc  *transport.ConfigDocument
}

// Enabled reports whether the resolved config allows telemetry.
func (r Resolved) Enabled() bool {
	return r.Doc.IsEnabled()
}

// TimeOffset is the offset measured when Doc was fetched.
func (r Resolved) TimeOffset() int64 {
	if r.Doc == nil {
		return 0
	}
	return r.Doc.TimeOffset
}

// Resolve picks the freshest available config: a live response, then the
// cached one, then the compiled-in default.
func Resolve(live, cached *transport.ConfigDocument) Resolved {
	switch {
	case live != nil:
		return Resolved{Tier: TierLive, Doc: live}
	case cached != nil:
		return Resolved{Tier: TierCached, Doc: cached}
	default:
		return Resolved{Tier: TierDefault}
	}
}

// EntryActive reports whether e applies at now. Both bounds are strict;
// a zero bound is open.
func EntryActive(e transport.ConfigEntry, now int64) bool {
	if e.StartTS != 0 && now <= e.StartTS {
		return false
	}
	if e.EndTS != 0 && now >= e.EndTS {
		return false
	}
	return true
}

// ActiveValues renders every entry active at now. Later entries win on
// duplicate keys.
func ActiveValues(entries []transport.ConfigEntry, now int64) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Key == "" || e.Value == nil || !EntryActive(e, now) {
			continue
		}
		out[e.Key] = render(e.Value)
	}
	return out
}

func render(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprint(x)
	default:
		return fmt.Sprint(x)
	}
}
