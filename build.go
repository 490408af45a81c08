package proto

import (
	"unsafe"

	"github.com/NikoMalik/reoproto/internal/bitset"
	"github.com/NikoMalik/reoproto/internal/metrics"
	"github.com/NikoMalik/reoproto/internal/storage"
	"github.com/NikoMalik/reoproto/internal/typeinfo"
)

// Build validates def and compiles it into a ProtoAll (spec.md §6, §7).
// On any validation failure it returns every error found in one pass
// rather than stopping at the first, as BuildErrors.
func Build(def *ProtoDef, opts ...Option) (*ProtoAll, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	var errs BuildErrors
	n := def.NumLocs
	kinds := make([]LocKind, n)
	types := make([]*typeinfo.Info, n)
	for id := 0; id < n; id++ {
		k, ok := def.Kinds[LocId(id)]
		if !ok {
			errs = append(errs, &BuildError{Kind: ErrUnknownType, Loc: LocId(id), Rule: -1, Msg: "no kind registered"})
			continue
		}
		kinds[id] = k
		info, ok := def.Types[LocId(id)]
		if !ok {
			errs = append(errs, &BuildError{Kind: ErrUnknownType, Loc: LocId(id), Rule: -1, Msg: "no type registered"})
			continue
		}
		types[id] = info
	}
	if len(errs) > 0 {
		return nil, errs
	}

	for id, fill := range def.MemFills {
		if kinds[id] != MemInitialized {
			errs = append(errs, &BuildError{Kind: ErrMemFillBroken, Loc: id, Rule: -1, Msg: "fill set on a non-MemInitialized location"})
			continue
		}
		if fill.Fill == nil {
			errs = append(errs, &BuildError{Kind: ErrMemFillBroken, Loc: id, Rule: -1, Msg: "nil fill function"})
		}
	}
	for id, k := range kinds {
		if k == MemInitialized {
			if _, ok := def.MemFills[LocId(id)]; !ok {
				errs = append(errs, &BuildError{Kind: ErrMemFillBroken, Loc: LocId(id), Rule: -1, Msg: "MemInitialized location has no fill callback"})
			}
		}
	}

	rules := make([]*RunRule, 0, len(def.Rules))
	for ri, rd := range def.Rules {
		r, rerrs := compileRule(ri, rd, kinds, types)
		errs = append(errs, rerrs...)
		if len(rerrs) == 0 {
			rules = append(rules, r)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	r := &protoR{
		numLocs:    n,
		kinds:      kinds,
		types:      types,
		rules:      rules,
		poPuSpaces: make([]*PoPuSpace, n),
		poGeSpaces: make([]*PoGeSpace, n),
		memoSpaces: make([]*MemoSpace, n),
	}
	ready := bitset.New(n)
	readyTentative := bitset.New(n)
	memoryBits := bitset.New(n)
	unclaimed := make(map[LocId]bool)
	for id, k := range kinds {
		lid := LocId(id)
		switch k {
		case PortPutter:
			r.poPuSpaces[id] = newPoPuSpace(types[id])
			unclaimed[lid] = true
		case PortGetter:
			r.poGeSpaces[id] = newPoGeSpace(types[id])
			unclaimed[lid] = true
		case MemInitialized, MemUninitialized:
			r.memoSpaces[id] = newMemoSpace(lid, types[id])
			// Memory locations participate in every rule that names them
			// without an external announcement: their readiness is
			// governed entirely by memory_bits, so the ready bit is set
			// once, permanently, at build time.
			ready.Set(id)
		}
	}

	arena := storage.NewArena()
	memRefs := make(map[unsafe.Pointer]int)
	for id, k := range kinds {
		if k != MemInitialized {
			continue
		}
		lid := LocId(id)
		info := types[id]
		ptr := arena.Alloc(info)
		def.MemFills[lid].Fill(ptr)
		r.memoSpaces[id].SetPtr(ptr)
		memoryBits.Set(id)
		memRefs[ptr] = 1
	}

	h := &ProtoAll{
		r:   r,
		cfg: cfg,
		w: &protoW{
			ready:          ready,
			readyTentative: readyTentative,
			memoryBits:     memoryBits,
			storage:        arena,
			memRefs:        memRefs,
			unclaimed:      unclaimed,
			metrics:        metrics.Counters{},
		},
	}
	return h, nil
}

// compileRule validates rd and compiles it into a RunRule.
func compileRule(ruleIdx int, rd RuleDef, kinds []LocKind, types []*typeinfo.Info) (*RunRule, BuildErrors) {
	var errs BuildErrors
	if rd.Guard == nil {
		rd.Guard = GuardTrue{}
	}
	n := len(kinds)
	guardReady := bitset.New(n)
	guardFull := bitset.New(n)
	assignVals := bitset.New(n)
	assignMask := bitset.New(n)

	// occurrence tracking for the "no location fires twice" rule, with one
	// exception: a location that is both an action's putter and one of
	// that same action's mem-getters (a self-referential update).
	type occ struct {
		count     int
		selfLoopOK bool
	}
	seen := make(map[LocId]*occ)
	mark := func(id LocId, isSelfLoopPair bool) {
		o, ok := seen[id]
		if !ok {
			o = &occ{}
			seen[id] = o
		}
		o.count++
		if isSelfLoopPair {
			o.selfLoopOK = true
		}
	}

	actions := make([]Action, 0, len(rd.Actions))
	for _, ad := range rd.Actions {
		putterKind := kinds[ad.Putter]
		if !putterKind.CanPut() {
			errs = append(errs, &BuildError{Kind: ErrWrongKind, Loc: ad.Putter, Rule: ruleIdx, Msg: "used as a putter"})
		}
		putterInfo := types[ad.Putter]
		guardReady.Set(int(ad.Putter))
		if putterKind.IsMem() {
			guardFull.Set(int(ad.Putter))
			assignMask.Set(int(ad.Putter)) // emptied on fire; assignVals bit stays 0
		}

		selfLoop := false
		for _, g := range ad.Getters {
			if g == ad.Putter && kinds[g].IsMem() {
				selfLoop = true
			}
		}
		mark(ad.Putter, selfLoop)

		var memGetters, portGetters []LocId
		for _, g := range ad.Getters {
			gk := kinds[g]
			if !gk.CanGet() {
				errs = append(errs, &BuildError{Kind: ErrWrongKind, Loc: g, Rule: ruleIdx, Msg: "used as a getter"})
			}
			if gi := types[g]; gi != nil && putterInfo != nil && gi.ID != putterInfo.ID {
				errs = append(errs, &BuildError{Kind: ErrTypeMismatch, Loc: g, Rule: ruleIdx, Msg: "getter type disagrees with putter"})
			}
			guardReady.Set(int(g))
			isSelf := g == ad.Putter && gk.IsMem()
			mark(g, isSelf)
			if gk.IsMem() {
				memGetters = append(memGetters, g)
				assignMask.Set(int(g))
				assignVals.Set(int(g)) // filled on fire
			} else {
				portGetters = append(portGetters, g)
			}
		}
		if total := len(memGetters) + len(portGetters); total > 1 && putterInfo != nil && !putterInfo.HasClone() {
			errs = append(errs, &BuildError{Kind: ErrFnUndefined, Loc: ad.Putter, Rule: ruleIdx, Msg: "multiple getters require a clone function"})
		}
		actions = append(actions, Action{Putter: ad.Putter, MemGetters: memGetters, PortGetters: portGetters})
	}
	for id, o := range seen {
		if o.count > 1 && !(o.count == 2 && o.selfLoopOK) {
			errs = append(errs, &BuildError{Kind: ErrSyncFiring, Loc: id, Rule: ruleIdx, Msg: "location appears more than once in this rule"})
		}
	}

	for _, s := range rd.Scratches {
		if len(s.Args) > 3 {
			errs = append(errs, &BuildError{Kind: ErrBadArity, Loc: s.ID, Rule: ruleIdx, Msg: "scratch cell takes at most 3 arguments"})
		}
		if s.Fill == nil {
			errs = append(errs, &BuildError{Kind: ErrBadArity, Loc: s.ID, Rule: ruleIdx, Msg: "scratch cell has no fill function"})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	mustEmpty := guardReady.Clone()
	mustEmpty.AndNot(guardFull)

	return &RunRule{
		ID:         ruleIdx,
		GuardReady: guardReady,
		GuardFull:  guardFull,
		AssignVals: assignVals,
		AssignMask: assignMask,
		Guard:      rd.Guard,
		Actions:    actions,
		Scratches:  rd.Scratches,
		mustEmpty:  mustEmpty,
	}, nil
}
