package proto

import "reflect"

// Claim claims LocId id as a Putter[T] or Getter[T], depending on the
// location's registered LocKind (spec.md §6).
//
// Each port LocId yields exactly one claim over the protocol's lifetime:
// claiming an already-claimed (or memory, or out-of-range) location
// returns ErrNotUnclaimed. Claiming with a T that doesn't match the
// location's registered TypeInfo returns ErrClaimTypeMismatch.
//
// Exactly one of the returned Putter/Getter is non-nil on success.
func Claim[T any](h *ProtoAll, id LocId) (putter *Putter[T], getter *Getter[T], err error) {
	if int(id) < 0 || int(id) >= len(h.r.kinds) {
		return nil, nil, ErrNotUnclaimed
	}
	kind := h.r.kinds[id]
	if !kind.IsPort() {
		return nil, nil, ErrNotUnclaimed
	}
	info := h.r.types[id]
	var want T
	if info.GoType != nil && info.GoType != reflect.TypeOf(&want).Elem() {
		return nil, nil, ErrClaimTypeMismatch
	}
	if !h.tryClaim(id) {
		return nil, nil, ErrNotUnclaimed
	}

	switch kind {
	case PortPutter:
		space := h.r.poPuSpaces[id]
		return &Putter[T]{proto: h, id: id, space: space, info: info}, nil, nil
	case PortGetter:
		space := h.r.poGeSpaces[id]
		return nil, &Getter[T]{proto: h, id: id, space: space, info: info}, nil
	default:
		h.release(id) // unreachable given the IsPort() check above, but keeps the slot consistent
		return nil, nil, ErrNotUnclaimed
	}
}

// AddPutter claims id, requiring it to be a PortPutter location (spec.md
// §6's role-checked claim API). A caller assembling a PortGroup from a
// fixed wiring diagram — where each LocId's role is known statically —
// uses this (and AddGetter) instead of Claim's putter-or-getter pair, so
// a wiring mistake (naming a getter location where a putter was meant)
// surfaces as ErrGotGetterExpectedPutter rather than a nil putter handle.
func AddPutter[T any](h *ProtoAll, id LocId) (*Putter[T], error) {
	if int(id) >= 0 && int(id) < len(h.r.kinds) && h.r.kinds[id] == PortGetter {
		return nil, ErrGotGetterExpectedPutter
	}
	p, _, err := Claim[T](h, id)
	return p, err
}

// AddGetter claims id, requiring it to be a PortGetter location. See
// AddPutter.
func AddGetter[T any](h *ProtoAll, id LocId) (*Getter[T], error) {
	if int(id) >= 0 && int(id) < len(h.r.kinds) && h.r.kinds[id] == PortPutter {
		return nil, ErrGotPutterExpectedGetter
	}
	_, g, err := Claim[T](h, id)
	return g, err
}
