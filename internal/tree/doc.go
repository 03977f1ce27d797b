/*
Package tree walks arbitrary labelled trees depth-first and lets the caller
detach or replace nodes while the walk is in progress.

Adapters expose a foreign tree (a goja AST, an HTML token tree, CSS blocks)
through the Node interface. The walker copies each node's slots into an arena
of integer ids the first time it needs them; from then on edits are made to the
arena, never to the foreign tree.

# Walk order

Pre-order, left to right, driven by an explicit stack of (id, generation)
pairs. A node's children are pushed only when Next is called after the node
was yielded, so a consumer that detaches or replaces the current node decides
whether its old subtree is walked at all. Detach and ReplaceWith bump the
generation of the affected entry and every materialised descendant; stale stack
items are dropped when popped.

# Lifecycle

	root ──▶ attached ──Detach/ReplaceWith──▶ detached (terminal)

Editing the root or a detached context returns ErrInvalidOperation. That error
means the caller's view of the tree has diverged from the walker, so callers
should treat it as fatal for the current rewrite.

# Example

	t := tree.New(root)
	for ctx := range t.All() {
		if ctx.Kind() == "uri" {
			if _, err := ctx.ReplaceWith(replacement, tree.SkipSubtree); err != nil {
				return err
			}
		}
	}
*/
package tree
