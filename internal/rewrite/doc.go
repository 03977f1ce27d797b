/*
Package rewrite makes fetched documents load every subresource through the
routing layer.

Each supported payload (HTML, CSS, classic and module JS, web app manifests)
is parsed into a tree.Node view, walked once, and every reference found is
replaced by its route. Edits are staged with a patch.Patcher and spliced into
the original text, so bytes that need no change are emitted untouched.

	e := rewrite.New(rewrite.WithLogger(logger))
	out, err := e.HTML(body, page)

Embedded payloads are rewritten recursively: inline scripts and event
handlers, style elements and attributes, and data: URLs whose media type has
a rewriter. An embedded payload that fails to parse is kept as it is; only a
failure of the top-level payload is returned, as a *ParseError.
*/
package rewrite
