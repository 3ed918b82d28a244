// Package zpt implements the ZPT State Manager's (C9) state-transition
// logic: validating zoom/pan/tilt/threshold transitions against the closed
// controlled vocabularies and materialising a [zptstate.State] into a
// [memory.NavigationView] (§4.9). Per-session ownership and lock
// serialisation live in internal/sessionregistry (C12); this package is
// pure — every function takes a state value and returns a new one (or an
// error, leaving the input unchanged per invariant (a)).
package zpt

import (
	"fmt"
	"time"

	"github.com/semem-go/semem/internal/errs"
	"github.com/semem-go/semem/internal/namespace"
	"github.com/semem-go/semem/internal/zptstate"
)

// SetZoom validates token against the closed zoom vocabulary and returns the
// updated state, or leaves s unchanged and returns an [errs.InvalidParameter]
// error if token is not recognised (§4.9 invariant a).
func SetZoom(ns *namespace.Factory, s zptstate.State, token string, now time.Time) (zptstate.State, error) {
	if _, ok := ns.Resolve(namespace.ZoomKind, token); !ok {
		return s, errs.New(errs.InvalidParameter, fmt.Sprintf("zpt: unknown zoom token %q", token))
	}
	next := s.Clone()
	next.Zoom = token
	next.Timestamp = now
	return next, nil
}

// SetTilt validates token against the closed tilt vocabulary and returns the
// updated state, or leaves s unchanged and returns an [errs.InvalidParameter]
// error if token is not recognised.
func SetTilt(ns *namespace.Factory, s zptstate.State, token string, now time.Time) (zptstate.State, error) {
	if _, ok := ns.Resolve(namespace.TiltKind, token); !ok {
		return s, errs.New(errs.InvalidParameter, fmt.Sprintf("zpt: unknown tilt token %q", token))
	}
	next := s.Clone()
	next.Tilt = token
	next.Timestamp = now
	return next, nil
}

// SetThreshold validates x is within [0,1] and returns the updated state, or
// leaves s unchanged and returns an [errs.InvalidParameter] error otherwise.
func SetThreshold(s zptstate.State, x float64, now time.Time) (zptstate.State, error) {
	if x < 0 || x > 1 {
		return s, errs.New(errs.InvalidParameter, fmt.Sprintf("zpt: threshold %v out of range [0,1]", x))
	}
	next := s.Clone()
	next.Threshold = x
	next.Timestamp = now
	return next, nil
}

// PanUpdate carries a partial pan change. A nil field leaves that dimension
// unchanged; a non-nil field replaces (Temporal) or unions
// (Domains/Keywords/Entities/Corpuscle) into the existing value, unless the supplied
// value is the empty slice/string, which explicitly resets that dimension
// to ∅ (§4.9 invariant b: "pan is monotone... unless the caller explicitly
// resets a dimension to ∅").
type PanUpdate struct {
	Domains   *[]string
	Keywords  *[]string
	Entities  *[]string
	Temporal  *string
	Corpuscle *[]string
}

// SetPan validates every token in update.Domains against the closed pan
// vocabulary and applies the accumulate-or-reset semantics described on
// [PanUpdate]. Returns s unchanged and an [errs.InvalidParameter] error if
// any domain token is unrecognised.
func SetPan(ns *namespace.Factory, s zptstate.State, update PanUpdate, now time.Time) (zptstate.State, error) {
	if update.Domains != nil {
		for _, d := range *update.Domains {
			if _, ok := ns.Resolve(namespace.PanKind, d); !ok {
				return s, errs.New(errs.InvalidParameter, fmt.Sprintf("zpt: unknown pan domain %q", d))
			}
		}
	}

	next := s.Clone()
	next.Pan.Domains = mergeOrReset(next.Pan.Domains, update.Domains)
	next.Pan.Keywords = mergeOrReset(next.Pan.Keywords, update.Keywords)
	next.Pan.Entities = mergeOrReset(next.Pan.Entities, update.Entities)
	next.Pan.Corpuscle = mergeOrReset(next.Pan.Corpuscle, update.Corpuscle)
	if update.Temporal != nil {
		next.Pan.Temporal = *update.Temporal
	}
	next.Timestamp = now
	return next, nil
}

// mergeOrReset implements the accumulate-unless-explicitly-∅ rule for one
// list-valued pan dimension.
func mergeOrReset(existing []string, update *[]string) []string {
	if update == nil {
		return existing
	}
	if len(*update) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(existing)+len(*update))
	merged := make([]string, 0, len(existing)+len(*update))
	for _, v := range existing {
		if !seen[v] {
			seen[v] = true
			merged = append(merged, v)
		}
	}
	for _, v := range *update {
		if !seen[v] {
			seen[v] = true
			merged = append(merged, v)
		}
	}
	return merged
}

// Snapshot returns a cheap, immutable copy of s (§4.9 "snapshot()").
func Snapshot(s zptstate.State) zptstate.State {
	return s.Clone()
}
