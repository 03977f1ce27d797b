package tree

// Context is a position in a Tree: a node plus where it hangs. Contexts are
// cheap handles; two contexts for the same node compare equal with Same.
type Context struct {
	tree *Tree
	id   int
}

func (c *Context) entry() *entry { return &c.tree.entries[c.id] }

// Node returns the wrapped node.
func (c *Context) Node() Node { return c.entry().node }

// Kind is shorthand for Node().Kind().
func (c *Context) Kind() string { return c.entry().node.Kind() }

// Range is shorthand for Node().Range().
func (c *Context) Range() (Range, bool) { return c.entry().node.Range() }

// IsRoot reports whether this is the walk's root.
func (c *Context) IsRoot() bool { return c.entry().parent == noParent }

// Attached reports whether the node still sits in its parent's slot. The root
// is always attached.
func (c *Context) Attached() bool { return c.entry().attached }

// Mode returns the emission mode the node was added with.
func (c *Context) Mode() Mode { return c.entry().mode }

// Key returns the parent slot key, or "" for the root.
func (c *Context) Key() string { return c.entry().key }

// Parent returns the parent context, or nil for the root.
func (c *Context) Parent() *Context {
	parent := c.entry().parent
	if parent == noParent {
		return nil
	}
	return &Context{tree: c.tree, id: parent}
}

// Index returns the node's position within a sequence slot, or -1 for singular
// slots, the root and detached nodes.
func (c *Context) Index() int {
	e := c.entry()
	if e.parent == noParent || !e.many || !e.attached {
		return -1
	}
	_, idx := c.tree.slotOf(c.id)
	return idx
}

// Depth returns the number of ancestors.
func (c *Context) Depth() int {
	depth := 0
	for p := c.entry().parent; p != noParent; p = c.tree.entries[p].parent {
		depth++
	}
	return depth
}

// Children returns contexts for the node's current children across all slots
// in order. It does not affect the walk order.
func (c *Context) Children() []*Context {
	c.tree.materialize(c.id)
	var out []*Context
	for _, slot := range c.entry().slots {
		for _, child := range slot.children {
			out = append(out, &Context{tree: c.tree, id: child})
		}
	}
	return out
}

// Slot returns contexts for the children currently held under key.
func (c *Context) Slot(key string) []*Context {
	c.tree.materialize(c.id)
	for _, slot := range c.entry().slots {
		if slot.key != key {
			continue
		}
		out := make([]*Context, 0, len(slot.children))
		for _, child := range slot.children {
			out = append(out, &Context{tree: c.tree, id: child})
		}
		return out
	}
	return nil
}

// Ancestor returns the nearest ancestor whose kind is one of kinds.
func (c *Context) Ancestor(kinds ...string) *Context {
	for p := c.Parent(); p != nil; p = p.Parent() {
		for _, k := range kinds {
			if p.Kind() == k {
				return p
			}
		}
	}
	return nil
}

// Same reports whether both contexts refer to the same arena entry.
func (c *Context) Same(other *Context) bool {
	return other != nil && c.tree == other.tree && c.id == other.id
}

// Detach is shorthand for Tree.Detach.
func (c *Context) Detach() (bool, error) { return c.tree.Detach(c) }

// ReplaceWith is shorthand for Tree.ReplaceWith.
func (c *Context) ReplaceWith(n Node, mode Mode) (*Context, error) {
	return c.tree.ReplaceWith(c, n, mode)
}
