package rewrite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/routeproxy/internal/patch"
	"github.com/GriffinCanCode/routeproxy/internal/route"
	"github.com/GriffinCanCode/routeproxy/internal/tree"
)

// DefaultHook is the global the JS rewriter routes intercepted accesses
// through.
const DefaultHook = "__rw$"

// maxDataDepth bounds data: URLs nested inside data: URLs.
const maxDataDepth = 4

// Observer is told what happened to every reference the rewriters meet.
// Implementations must be safe for concurrent use.
type Observer interface {
	ReferenceRouted(t route.ResourceType)
	ReferenceSkipped(t route.ResourceType, reason string)
}

type nopObserver struct{}

func (nopObserver) ReferenceRouted(route.ResourceType)          {}
func (nopObserver) ReferenceSkipped(route.ResourceType, string) {}

// Engine dispatches payloads to the rewriter for their type. It holds only
// immutable configuration and may be shared between goroutines.
type Engine struct {
	logger   *zap.Logger
	hook     string
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-reference debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHook sets the name of the JS hook global.
func WithHook(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.hook = name
		}
	}
}

// WithObserver registers an observer for routed and skipped references.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// New returns an engine with a no-op logger and the default hook unless
// overridden.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   zap.NewNop(),
		hook:     DefaultHook,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hook returns the configured JS hook name.
func (e *Engine) Hook() string { return e.hook }

// Rewrite rewrites text of type t so that every reference it embeds points
// through the routing layer. Relative references resolve against page.
func (e *Engine) Rewrite(t route.ResourceType, text string, page *route.Address) (string, error) {
	return e.rewrite(t, text, page, 0)
}

// JS rewrites a classic script.
func (e *Engine) JS(text string, page *route.Address) (string, error) {
	return e.Rewrite(route.JS, text, page)
}

// CSS rewrites a stylesheet or a declaration list.
func (e *Engine) CSS(text string, page *route.Address) (string, error) {
	return e.Rewrite(route.CSS, text, page)
}

// HTML rewrites a document or fragment.
func (e *Engine) HTML(text string, page *route.Address) (string, error) {
	return e.Rewrite(route.HTML, text, page)
}

// Manifest rewrites a web app manifest.
func (e *Engine) Manifest(text string, page *route.Address) (string, error) {
	return e.Rewrite(route.Manifest, text, page)
}

// Rewritable reports whether t has a rewriter.
func Rewritable(t route.ResourceType) bool {
	switch t {
	case route.JS, route.Module, route.CSS, route.HTML, route.Manifest:
		return true
	}
	return false
}

func (e *Engine) rewrite(t route.ResourceType, text string, page *route.Address, depth int) (string, error) {
	if page == nil {
		return "", errors.New("rewrite: nil page address")
	}
	s := e.newSession(t, page, depth)
	switch t {
	case route.JS, route.Module:
		return s.js(text, t)
	case route.CSS:
		return s.css(text)
	case route.HTML:
		return s.html(text)
	case route.Manifest:
		return s.manifest(text)
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, t)
}

// session is the state of one rewrite call.
type session struct {
	engine  *Engine
	kind    route.ResourceType
	page    *route.Address
	depth   int
	logger  *zap.Logger
	patcher *patch.Patcher
	// imports marks the import() callees of the script being rewritten.
	imports map[int]bool
}

func (e *Engine) newSession(t route.ResourceType, page *route.Address, depth int) *session {
	return &session{
		engine:  e,
		kind:    t,
		page:    page,
		depth:   depth,
		logger:  e.logger.With(zap.String("type", string(t))),
		patcher: patch.New(generate),
	}
}

// sub starts an independent rewrite of a payload embedded in this one, such
// as an inline script or a style attribute.
func (s *session) sub(t route.ResourceType, page *route.Address) *session {
	return s.engine.newSession(t, page, s.depth)
}

// generate renders replacement nodes. Every rewriter builds its replacement
// text up front, so replacements are always leaves.
func generate(n tree.Node) (string, error) {
	if leaf, ok := n.(*tree.Leaf); ok {
		return leaf.Text, nil
	}
	return "", fmt.Errorf("cannot generate %s node", n.Kind())
}

// walk drives visit over root and splices the staged edits into text.
func (s *session) walk(root tree.Node, text string, visit func(*tree.Context) error) (string, error) {
	if err := tree.New(root).Walk(visit); err != nil {
		return "", err
	}
	out, err := s.patcher.Finalize(text)
	if err != nil {
		return "", err
	}
	s.logger.Debug("rewrite finished",
		zap.Int("staged", s.patcher.Len()),
		zap.Int("bytes_in", len(text)),
		zap.Int("bytes_out", len(out)),
	)
	return out, nil
}

// replace stages text in place of ctx's node and swaps the node out of the
// walk so its subtree is not visited.
func (s *session) replace(ctx *tree.Context, text string) error {
	replacement := &tree.Leaf{Tag: "replacement", Text: text}
	if _, ok := s.patcher.Stage(ctx.Node(), replacement); !ok {
		return nil
	}
	if ctx.IsRoot() {
		return nil
	}
	_, err := ctx.ReplaceWith(replacement, tree.SkipSubtree)
	return err
}

// remove deletes ctx's node from the output.
func (s *session) remove(ctx *tree.Context) error {
	if _, ok := s.patcher.Stage(ctx.Node(), &tree.Leaf{Tag: "removed"}); !ok {
		return nil
	}
	_, err := ctx.Detach()
	return err
}

// stageSpan replaces a raw byte range that has no node of its own.
func (s *session) stageSpan(tag string, r tree.Range, text string) {
	s.patcher.Stage(&tree.Leaf{Tag: tag, Span: &r}, &tree.Leaf{Tag: "replacement", Text: text})
}

// routeRef maps ref to its routed form, resolving it against base. ok is
// false when ref must stay as it is.
func (s *session) routeRef(ref string, t route.ResourceType, base *route.Address) (string, bool, error) {
	trimmed := strings.TrimSpace(ref)
	switch {
	case trimmed == "" || strings.HasPrefix(trimmed, "#"):
		return ref, false, nil
	case route.IsDataURL(trimmed):
		return s.rewriteDataURL(trimmed, base)
	}

	addr, err := base.Resolve(trimmed)
	if err != nil {
		s.skip(t, "unresolvable")
		s.logger.Warn("reference left untouched", zap.String("ref", trimmed), zap.Error(err))
		return ref, false, nil
	}

	routed, err := route.ToRoute(t, addr)
	if errors.Is(err, route.ErrUnsupportedScheme) {
		s.skip(t, "scheme")
		s.logger.Debug("reference scheme not routable", zap.String("scheme", addr.Scheme()))
		return ref, false, nil
	}
	if err != nil {
		return "", false, err
	}

	s.engine.observer.ReferenceRouted(t)
	s.logger.Debug("reference routed", zap.String("ref", trimmed), zap.String("as", string(t)))
	return routed, true, nil
}

// rewriteDataURL runs the payload of an inline data: URL through the
// rewriter for its media type and re-embeds it with the same attributes.
// Payloads that fail to parse are left alone; they are not the document
// being rewritten.
func (s *session) rewriteDataURL(raw string, base *route.Address) (string, bool, error) {
	if s.depth >= maxDataDepth {
		s.skip(s.kind, "depth")
		return raw, false, nil
	}
	d, err := route.ParseDataURL(raw)
	if err != nil {
		s.skip(s.kind, "data")
		s.logger.Warn("malformed data url", zap.Error(err))
		return raw, false, nil
	}
	t, ok := TypeForMIME(d.MediaType())
	if !ok {
		return raw, false, nil
	}

	payload := string(d.Payload)
	out, err := s.engine.rewrite(t, payload, base, s.depth+1)
	if err != nil {
		s.skip(t, "data")
		s.logger.Warn("data url payload left untouched", zap.String("mime", d.MediaType()), zap.Error(err))
		return raw, false, nil
	}
	if out == payload {
		return raw, false, nil
	}
	d.Payload = []byte(out)
	return d.String(), true, nil
}

func (s *session) skip(t route.ResourceType, reason string) {
	s.engine.observer.ReferenceSkipped(t, reason)
}

// TypeForMIME maps a media type to the rewriter for it. Parameters such as
// charset are ignored. Plain JSON is read as a manifest, the only JSON
// document that carries references.
func TypeForMIME(mime string) (route.ResourceType, bool) {
	mime, _, _ = strings.Cut(mime, ";")
	switch mime = strings.ToLower(strings.TrimSpace(mime)); {
	case mime == "text/css":
		return route.CSS, true
	case mime == "text/html" || mime == "application/xhtml+xml":
		return route.HTML, true
	case mime == "application/manifest+json" || mime == "application/json":
		return route.Manifest, true
	case isJSMIME(mime):
		return route.JS, true
	}
	return "", false
}

var jsMIMEs = map[string]bool{
	"text/javascript":          true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"text/ecmascript":          true,
	"application/ecmascript":   true,
	"text/jscript":             true,
}

func isJSMIME(mime string) bool {
	mime, _, _ = strings.Cut(mime, ";")
	return jsMIMEs[strings.ToLower(strings.TrimSpace(mime))]
}

// quote renders s as a double-quoted JSON string, which is also a valid JS
// string literal.
func quote(s string) (string, error) {
	return sonic.ConfigDefault.MarshalToString(s)
}
