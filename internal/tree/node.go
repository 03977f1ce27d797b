package tree

// Range is a half-open byte span [Start, End) into the original source text.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether other lies entirely within r.
func (r Range) Contains(other Range) bool {
	return other.Start >= r.Start && other.End <= r.End
}

// Overlaps reports whether the two spans share at least one byte.
func (r Range) Overlaps(other Range) bool {
	return other.Start < r.End && r.Start < other.End
}

// Node is the capability an adapter exposes so the walker can traverse a
// foreign tree. Slots are read once per node, the first time the walker or a
// caller asks for its children; later edits go through the Tree, not the Node.
type Node interface {
	// Kind tags the node, e.g. "element", "DotExpression", "uri".
	Kind() string

	// Range returns the node's span in the original source. Synthetic nodes
	// report false.
	Range() (Range, bool)

	// Slots enumerates child slots in source order.
	Slots() []Slot
}

// Slot is a named child position. Many slots hold an ordered sequence, the
// rest hold at most one child.
type Slot struct {
	Key      string
	Many     bool
	Children []Node
}

// One is a convenience constructor for a singular slot. A nil child yields an
// empty slot.
func One(key string, child Node) Slot {
	if child == nil {
		return Slot{Key: key}
	}
	return Slot{Key: key, Children: []Node{child}}
}

// Seq is a convenience constructor for a sequence slot.
func Seq(key string, children ...Node) Slot {
	return Slot{Key: key, Many: true, Children: children}
}

// Mode controls whether the walker yields a node.
type Mode int

const (
	// Emit yields the node and walks its children.
	Emit Mode = iota

	// SkipSelf walks the children without yielding the node itself.
	SkipSelf

	// SkipSubtree neither yields the node nor walks below it.
	SkipSubtree
)

func (m Mode) String() string {
	switch m {
	case Emit:
		return "emit"
	case SkipSelf:
		return "skip-self"
	case SkipSubtree:
		return "skip-subtree"
	default:
		return "unknown"
	}
}

// Leaf is a childless node with a fixed kind and optional range. Rewriters use
// it for synthetic replacement nodes.
type Leaf struct {
	Tag  string
	Span *Range
	Text string
}

func (l *Leaf) Kind() string { return l.Tag }

func (l *Leaf) Range() (Range, bool) {
	if l.Span == nil {
		return Range{}, false
	}
	return *l.Span, true
}

func (l *Leaf) Slots() []Slot { return nil }
