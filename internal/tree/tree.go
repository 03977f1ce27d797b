package tree

import "iter"

const noParent = -1

// entry is one arena slot. Entries are never freed during a walk; a detached
// entry simply stops being reachable.
type entry struct {
	node     Node
	parent   int
	key      string
	many     bool
	attached bool
	gen      uint32
	mode     Mode

	materialized bool
	scheduled    bool
	slots        []slotState
}

type slotState struct {
	key      string
	many     bool
	children []int
}

// ref is a stack item. It is stale once the entry's generation moves on.
type ref struct {
	id  int
	gen uint32
}

// Tree walks a Node tree depth-first in pre-order while tolerating Detach and
// ReplaceWith calls between yields. It is not safe for concurrent use.
type Tree struct {
	entries []entry
	stack   []ref
	current ref
	hasCur  bool
}

// New prepares a walk rooted at root.
func New(root Node) *Tree {
	t := &Tree{
		entries: []entry{{
			node:     root,
			parent:   noParent,
			attached: true,
		}},
	}
	t.stack = append(t.stack, ref{id: 0})
	return t
}

// Root returns the context of the root node.
func (t *Tree) Root() *Context { return &Context{tree: t, id: 0} }

// Next returns the next node in pre-order. Children of the previously yielded
// node are discovered only now, so edits made to it since the last call decide
// what is walked.
func (t *Tree) Next() (*Context, bool) {
	if t.hasCur {
		cur := t.current
		t.hasCur = false
		if t.live(cur) {
			t.schedule(cur.id)
		}
	}

	for len(t.stack) > 0 {
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]

		if !t.live(top) {
			continue
		}

		switch t.entries[top.id].mode {
		case SkipSubtree:
			continue
		case SkipSelf:
			t.schedule(top.id)
			continue
		}

		t.current = top
		t.hasCur = true
		return &Context{tree: t, id: top.id}, true
	}

	return nil, false
}

// All adapts Next to a range-over-func iterator.
func (t *Tree) All() iter.Seq[*Context] {
	return func(yield func(*Context) bool) {
		for {
			ctx, ok := t.Next()
			if !ok || !yield(ctx) {
				return
			}
		}
	}
}

// Walk calls fn for every node until fn returns an error.
func (t *Tree) Walk(fn func(*Context) error) error {
	for ctx := range t.All() {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) live(r ref) bool {
	e := &t.entries[r.id]
	return e.attached && e.gen == r.gen
}

// materialize creates arena entries for id's children without scheduling
// them.
func (t *Tree) materialize(id int) {
	if t.entries[id].materialized {
		return
	}
	t.entries[id].materialized = true

	slots := t.entries[id].node.Slots()
	states := make([]slotState, 0, len(slots))
	for _, slot := range slots {
		state := slotState{key: slot.Key, many: slot.Many}
		for _, child := range slot.Children {
			if child == nil {
				continue
			}
			state.children = append(state.children, t.add(child, id, slot.Key, slot.Many, Emit))
		}
		states = append(states, state)
	}
	// t.add may have grown the arena, so index again rather than holding a pointer.
	t.entries[id].slots = states
}

// schedule pushes id's children so the first child of the first slot is
// popped first.
func (t *Tree) schedule(id int) {
	t.materialize(id)
	e := &t.entries[id]
	if e.scheduled {
		return
	}
	e.scheduled = true

	for s := len(e.slots) - 1; s >= 0; s-- {
		children := e.slots[s].children
		for c := len(children) - 1; c >= 0; c-- {
			child := children[c]
			t.stack = append(t.stack, ref{id: child, gen: t.entries[child].gen})
		}
	}
}

func (t *Tree) add(n Node, parent int, key string, many bool, mode Mode) int {
	t.entries = append(t.entries, entry{
		node:     n,
		parent:   parent,
		key:      key,
		many:     many,
		attached: true,
		mode:     mode,
	})
	return len(t.entries) - 1
}

// invalidate bumps the generation of id and every materialized descendant so
// their pending stack refs are skipped.
func (t *Tree) invalidate(id int) {
	pending := []int{id}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		e := &t.entries[cur]
		e.gen++
		for _, slot := range e.slots {
			pending = append(pending, slot.children...)
		}
	}
}

// slotOf finds the parent slot holding id and the child's position in it.
func (t *Tree) slotOf(id int) (*slotState, int) {
	e := &t.entries[id]
	parent := &t.entries[e.parent]
	for s := range parent.slots {
		slot := &parent.slots[s]
		if slot.key != e.key {
			continue
		}
		for i, child := range slot.children {
			if child == id {
				return slot, i
			}
		}
	}
	return nil, -1
}

func (t *Tree) check(op string, id int) error {
	e := &t.entries[id]
	if e.parent == noParent {
		return &OperationError{Op: op, Kind: e.node.Kind(), Reason: "context is the root"}
	}
	if !e.attached {
		return &OperationError{Op: op, Kind: e.node.Kind(), Reason: "context is already detached"}
	}
	return nil
}

// Detach removes the context's node from its parent slot. The returned bool
// reports whether the node was found where the context said it was.
func (t *Tree) Detach(ctx *Context) (bool, error) {
	if err := t.check("detach", ctx.id); err != nil {
		return false, err
	}

	slot, idx := t.slotOf(ctx.id)
	found := slot != nil
	if found {
		slot.children = append(slot.children[:idx], slot.children[idx+1:]...)
	}

	t.entries[ctx.id].attached = false
	t.invalidate(ctx.id)
	return found, nil
}

// ReplaceWith puts n in the context's place and returns a context for n. The
// old context becomes detached and its pending descendants are never yielded.
// The replacement is walked next, subject to mode.
func (t *Tree) ReplaceWith(ctx *Context, n Node, mode Mode) (*Context, error) {
	if err := t.check("replace", ctx.id); err != nil {
		return nil, err
	}

	old := t.entries[ctx.id]
	if slot, _ := t.slotOf(ctx.id); slot == nil {
		return nil, &OperationError{Op: "replace", Kind: old.node.Kind(), Reason: "node missing from its parent slot"}
	}

	id := t.add(n, old.parent, old.key, old.many, mode)
	slot, idx := t.slotOf(ctx.id)
	slot.children[idx] = id

	t.entries[ctx.id].attached = false
	t.invalidate(ctx.id)

	// An unscheduled parent picks the replacement up from its slot later.
	if t.entries[old.parent].scheduled {
		t.stack = append(t.stack, ref{id: id, gen: t.entries[id].gen})
	}
	return &Context{tree: t, id: id}, nil
}
