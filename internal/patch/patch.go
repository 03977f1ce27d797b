// Package patch stages text replacements against nodes of a parsed tree and
// splices them into the original source in one pass.
//
// Ranges always refer to the original, unedited text. Finalize renders every
// staged replacement, orders the edits by start offset (outer edits before the
// edits nested inside them) and applies them while tracking the cumulative
// length delta. An edit that overlaps one already applied is discarded, so
// when a parent and one of its descendants are both staged only the parent's
// replacement reaches the output.
package patch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/GriffinCanCode/routeproxy/internal/tree"
)

// ErrRangeOutOfBounds indicates a staged range that does not fit the text
// passed to Finalize.
var ErrRangeOutOfBounds = errors.New("range out of bounds")

// Generator renders a replacement node to source text.
type Generator func(tree.Node) (string, error)

// Modification is one staged replacement, kept in staging order.
type Modification struct {
	Original    tree.Node
	Range       tree.Range
	Replacement tree.Node
}

// Edit is a rendered modification that survived overlap pruning. Offset is the
// length delta accumulated from earlier edits; the replacement text starts at
// Range.Start+Offset in the output.
type Edit struct {
	Range  tree.Range
	Text   string
	Offset int
}

// Patcher accumulates modifications for a single source text. Nodes used as
// originals must be comparable, which pointer-backed adapters always are.
type Patcher struct {
	generate Generator
	mods     []Modification
	index    map[tree.Node]int
}

// New returns an empty patcher that renders replacements with gen.
func New(gen Generator) *Patcher {
	return &Patcher{
		generate: gen,
		index:    make(map[tree.Node]int),
	}
}

// Stage records that original should be replaced by replacement. Staging the
// same original again is a no-op that returns the first replacement. Nodes
// without a source range cannot anchor a splice and are not staged; ok is
// false for them.
func (p *Patcher) Stage(original, replacement tree.Node) (recorded tree.Node, ok bool) {
	if i, seen := p.index[original]; seen {
		return p.mods[i].Replacement, true
	}

	r, hasRange := original.Range()
	if !hasRange {
		return nil, false
	}

	p.index[original] = len(p.mods)
	p.mods = append(p.mods, Modification{Original: original, Range: r, Replacement: replacement})
	return replacement, true
}

// Staged reports whether original already has a recorded replacement.
func (p *Patcher) Staged(original tree.Node) bool {
	_, ok := p.index[original]
	return ok
}

// Len returns the number of staged modifications.
func (p *Patcher) Len() int { return len(p.mods) }

// Modifications returns the staged modifications in staging order.
func (p *Patcher) Modifications() []Modification {
	return append([]Modification(nil), p.mods...)
}

// Plan renders, orders and prunes the staged modifications against original
// without building the output.
func (p *Patcher) Plan(original string) ([]Edit, error) {
	rendered := make([]Edit, 0, len(p.mods))
	for _, m := range p.mods {
		if m.Range.Start < 0 || m.Range.End < m.Range.Start || m.Range.End > len(original) {
			return nil, fmt.Errorf("%w: [%d,%d) in %d bytes (%s)",
				ErrRangeOutOfBounds, m.Range.Start, m.Range.End, len(original), m.Original.Kind())
		}
		text, err := p.generate(m.Replacement)
		if err != nil {
			return nil, fmt.Errorf("render %s replacement: %w", m.Replacement.Kind(), err)
		}
		rendered = append(rendered, Edit{Range: m.Range, Text: text})
	}

	sort.SliceStable(rendered, func(i, j int) bool {
		a, b := rendered[i].Range, rendered[j].Range
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		// Same start: the wider edit encloses the narrower one and must win.
		return a.End > b.End
	})

	edits := make([]Edit, 0, len(rendered))
	offset := 0
	consumed := 0
	for _, r := range rendered {
		if r.Range.Start < consumed {
			// Nested in or overlapping an applied edit.
			continue
		}
		r.Offset = offset
		edits = append(edits, r)
		offset += len(r.Text) - r.Range.Len()
		consumed = r.Range.End
	}
	return edits, nil
}

// Finalize returns original with every surviving edit spliced in.
func (p *Patcher) Finalize(original string) (string, error) {
	edits, err := p.Plan(original)
	if err != nil {
		return "", err
	}
	if len(edits) == 0 {
		return original, nil
	}

	var sb strings.Builder
	last := edits[len(edits)-1]
	sb.Grow(len(original) + last.Offset + len(last.Text) - last.Range.Len())

	cursor := 0
	for _, e := range edits {
		sb.WriteString(original[cursor:e.Range.Start])
		sb.WriteString(e.Text)
		cursor = e.Range.End
	}
	sb.WriteString(original[cursor:])
	return sb.String(), nil
}
