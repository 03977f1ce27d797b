package rewrite

import (
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/routeproxy/internal/route"
	"github.com/GriffinCanCode/routeproxy/internal/tree"
)

const (
	htmlDocument = "document"
	htmlElement  = "element"
	htmlAttr     = "attr"
	htmlValue    = "value"
	htmlText     = "text"
	htmlComment  = "comment"
	htmlDoctype  = "doctype"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// htmlNode is one node of the token tree. Spans cover the raw source: a whole
// tag for elements, leading whitespace through the value for attributes and
// the value including its quotes for values.
type htmlNode struct {
	kind     string
	tag      string
	span     tree.Range
	attrs    []*htmlNode
	children []*htmlNode

	name  string
	value *htmlNode
	text  string
}

func (n *htmlNode) Kind() string { return n.kind }

func (n *htmlNode) Range() (tree.Range, bool) { return n.span, true }

func (n *htmlNode) Slots() []tree.Slot {
	switch n.kind {
	case htmlDocument:
		return []tree.Slot{tree.Seq("children", htmlNodes(n.children)...)}
	case htmlElement:
		return []tree.Slot{
			tree.Seq("attrs", htmlNodes(n.attrs)...),
			tree.Seq("children", htmlNodes(n.children)...),
		}
	case htmlAttr:
		if n.value != nil {
			return []tree.Slot{tree.One("value", n.value)}
		}
	}
	return nil
}

// attr returns the decoded value of the first attribute called name.
func (n *htmlNode) attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.name != name {
			continue
		}
		if a.value == nil {
			return "", true
		}
		return a.value.text, true
	}
	return "", false
}

func htmlNodes(ns []*htmlNode) []tree.Node {
	out := make([]tree.Node, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}

type htmlTree struct {
	root     *htmlNode
	baseHref string
	hasBase  bool
}

// parseHTML builds a tree from the tokenizer's raw spans. It does not run the
// tree construction algorithm; end tags close the nearest open element with
// the same name and unmatched ones are ignored.
func parseHTML(text string) (*htmlTree, error) {
	root := &htmlNode{kind: htmlDocument, span: tree.Range{Start: 0, End: len(text)}}
	doc := &htmlTree{root: root}
	stack := []*htmlNode{root}
	z := html.NewTokenizer(strings.NewReader(text))
	offset := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return doc, nil
			}
			return nil, z.Err()
		}

		raw := string(z.Raw())
		r := tree.Range{Start: offset, End: offset + len(raw)}
		offset = r.End
		top := stack[len(stack)-1]

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			el := parseTag(raw, r)
			top.children = append(top.children, el)
			if el.tag == "base" && !doc.hasBase {
				doc.baseHref, doc.hasBase = el.attr("href")
			}
			if tt == html.StartTagToken && !voidElements[el.tag] {
				stack = append(stack, el)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].tag == string(name) {
					stack[i].span.End = r.End
					stack = stack[:i]
					break
				}
			}
		case html.TextToken:
			top.children = append(top.children, &htmlNode{kind: htmlText, span: r, text: raw})
		case html.CommentToken:
			top.children = append(top.children, &htmlNode{kind: htmlComment, span: r})
		case html.DoctypeToken:
			top.children = append(top.children, &htmlNode{kind: htmlDoctype, span: r})
		}
	}
}

// parseTag scans the attributes of a raw start tag, keeping their spans. r is
// the tag's span in the document.
func parseTag(raw string, r tree.Range) *htmlNode {
	el := &htmlNode{kind: htmlElement, span: r}
	i := 1
	for i < len(raw) && !isTagSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}
	el.tag = strings.ToLower(raw[1:i])

	for i < len(raw) {
		lead := i
		for i < len(raw) && (isTagSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			break
		}

		nameStart := i
		i++ // a leading '=' belongs to the name
		for i < len(raw) && !isTagSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' && raw[i] != '=' {
			i++
		}
		attr := &htmlNode{kind: htmlAttr, name: strings.ToLower(raw[nameStart:i])}

		j := i
		for j < len(raw) && isTagSpace(raw[j]) {
			j++
		}
		if j < len(raw) && raw[j] == '=' {
			j++
			for j < len(raw) && isTagSpace(raw[j]) {
				j++
			}
			valueStart := j
			var value string
			if j < len(raw) && (raw[j] == '"' || raw[j] == '\'') {
				if end := strings.IndexByte(raw[j+1:], raw[j]); end >= 0 {
					value = raw[j+1 : j+1+end]
					j += end + 2
				} else {
					value = strings.TrimSuffix(raw[j+1:], ">")
					j = len(raw) - 1
				}
			} else {
				for j < len(raw) && !isTagSpace(raw[j]) && raw[j] != '>' {
					j++
				}
				value = raw[valueStart:j]
			}
			attr.value = &htmlNode{
				kind: htmlValue,
				span: tree.Range{Start: r.Start + valueStart, End: r.Start + j},
				text: html.UnescapeString(value),
			}
			i = j
		}

		attr.span = tree.Range{Start: r.Start + lead, End: r.Start + i}
		el.attrs = append(el.attrs, attr)
	}
	return el
}

func isTagSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

type htmlRewriter struct {
	s    *session
	base *route.Address
}

func (s *session) html(text string) (string, error) {
	doc, err := parseHTML(text)
	if err != nil {
		return "", &ParseError{Type: route.HTML, Err: err}
	}

	h := &htmlRewriter{s: s, base: s.page}
	if doc.hasBase {
		base, err := s.page.Resolve(doc.baseHref)
		if err != nil {
			s.logger.Warn("ignoring unparsable base href", zap.String("href", doc.baseHref), zap.Error(err))
		} else {
			h.base = base
		}
	}
	return s.walk(doc.root, text, h.visit)
}

func (h *htmlRewriter) visit(ctx *tree.Context) error {
	n, ok := ctx.Node().(*htmlNode)
	if !ok {
		return nil
	}
	switch n.kind {
	case htmlElement:
		return h.element(ctx, n)
	case htmlText:
		return h.text(ctx, n)
	}
	return nil
}

// element handles every attribute of n while n is current; the attribute
// nodes are walked afterwards but need no further work.
func (h *htmlRewriter) element(ctx *tree.Context, el *htmlNode) error {
	for _, attrCtx := range ctx.Slot("attrs") {
		attr, ok := attrCtx.Node().(*htmlNode)
		if !ok {
			continue
		}
		if err := h.attribute(el, attrCtx, attr); err != nil {
			return err
		}
	}
	return nil
}

func (h *htmlRewriter) attribute(el *htmlNode, attrCtx *tree.Context, attr *htmlNode) error {
	name := attr.name
	switch {
	case name == "integrity" && (el.tag == "script" || el.tag == "link"):
		return h.s.remove(attrCtx)
	case name == "href" && el.tag == "base":
		return h.s.remove(attrCtx)
	case attr.value == nil:
		return nil
	}

	value := attr.value.text
	var (
		out     string
		changed bool
		err     error
	)
	switch {
	case len(name) > 2 && strings.HasPrefix(name, "on"):
		out, changed = h.embedded(route.JS, value, true)
	case name == "style":
		out, changed = h.embedded(route.CSS, value, false)
	case name == "srcset" && (el.tag == "img" || el.tag == "source"):
		out, changed, err = h.srcset(value)
	case name == "content" && el.tag == "meta" && isRefresh(el):
		out, changed, err = h.refresh(value)
	default:
		t, ok := attrType(el, name)
		if !ok {
			return nil
		}
		out, changed, err = h.s.routeRef(value, t, h.base)
	}
	if err != nil || !changed {
		return err
	}
	return h.setValue(attrCtx, out)
}

func (h *htmlRewriter) setValue(attrCtx *tree.Context, value string) error {
	values := attrCtx.Slot("value")
	if len(values) == 0 {
		return nil
	}
	return h.s.replace(values[0], `"`+html.EscapeString(value)+`"`)
}

func (h *htmlRewriter) text(ctx *tree.Context, n *htmlNode) error {
	parent := ctx.Parent()
	if parent == nil {
		return nil
	}
	el, ok := parent.Node().(*htmlNode)
	if !ok || el.kind != htmlElement {
		return nil
	}

	var (
		out     string
		changed bool
	)
	switch el.tag {
	case "style":
		out, changed = h.embedded(route.CSS, n.text, false)
	case "script":
		t, ok := scriptType(el)
		if !ok {
			return nil
		}
		out, changed = h.embedded(t, n.text, false)
	}
	if !changed {
		return nil
	}
	return h.s.replace(ctx, out)
}

// embedded rewrites CSS or JS found inside the document. A payload the
// parser rejects is left as it is so one bad inline script does not cost
// the whole page.
func (h *htmlRewriter) embedded(t route.ResourceType, code string, handler bool) (string, bool) {
	if strings.TrimSpace(code) == "" {
		return code, false
	}
	sub := h.s.sub(t, h.base)

	var (
		out string
		err error
	)
	switch {
	case handler:
		out, err = sub.jsHandler(code)
	case t == route.CSS:
		out, err = sub.css(code)
	default:
		out, err = sub.js(code, t)
	}
	if err != nil {
		h.s.skip(t, "parse")
		h.s.logger.Warn("inline payload left untouched", zap.String("as", string(t)), zap.Error(err))
		return code, false
	}
	return out, out != code
}

type srcCandidate struct {
	url        string
	descriptor string
}

// parseSrcset splits a srcset value into URL and descriptor pairs.
func parseSrcset(s string) []srcCandidate {
	var out []srcCandidate
	i := 0
	for i < len(s) {
		for i < len(s) && (isTagSpace(s[i]) || s[i] == ',') {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		for i < len(s) && !isTagSpace(s[i]) {
			i++
		}
		url := s[start:i]
		if strings.HasSuffix(url, ",") {
			out = append(out, srcCandidate{url: strings.TrimRight(url, ",")})
			continue
		}
		descStart := i
		for i < len(s) && s[i] != ',' {
			i++
		}
		out = append(out, srcCandidate{url: url, descriptor: strings.TrimSpace(s[descStart:i])})
	}
	return out
}

func (h *htmlRewriter) srcset(value string) (string, bool, error) {
	candidates := parseSrcset(value)
	changed := false
	for i, c := range candidates {
		routed, ok, err := h.s.routeRef(c.url, route.Binary, h.base)
		if err != nil {
			return "", false, err
		}
		if ok {
			candidates[i].url = routed
			changed = true
		}
	}
	if !changed {
		return value, false, nil
	}

	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = c.url
		if c.descriptor != "" {
			parts[i] += " " + c.descriptor
		}
	}
	return strings.Join(parts, ", "), true, nil
}

func isRefresh(el *htmlNode) bool {
	equiv, _ := el.attr("http-equiv")
	return strings.EqualFold(strings.TrimSpace(equiv), "refresh")
}

// refresh routes the url= part of a meta refresh, e.g. "5; url=/next".
func (h *htmlRewriter) refresh(content string) (string, bool, error) {
	idx := strings.Index(strings.ToLower(content), "url")
	if idx < 0 {
		return content, false, nil
	}
	i := idx + len("url")
	for i < len(content) && isTagSpace(content[i]) {
		i++
	}
	if i >= len(content) || content[i] != '=' {
		return content, false, nil
	}
	i++
	for i < len(content) && isTagSpace(content[i]) {
		i++
	}

	start, end := i, len(content)
	if start < len(content) && (content[start] == '\'' || content[start] == '"') {
		q := content[start]
		start++
		if closing := strings.IndexByte(content[start:], q); closing >= 0 {
			end = start + closing
		}
	}

	routed, changed, err := h.s.routeRef(strings.TrimSpace(content[start:end]), route.HTML, h.base)
	if err != nil || !changed {
		return content, false, err
	}
	return content[:start] + routed + content[end:], true, nil
}

// attrType maps an element attribute to the resource type it loads.
func attrType(el *htmlNode, name string) (route.ResourceType, bool) {
	switch name {
	case "href":
		switch el.tag {
		case "a", "area":
			return route.HTML, true
		case "link":
			return linkType(el), true
		}
	case "src":
		switch el.tag {
		case "script":
			if t, ok := scriptType(el); ok {
				return t, true
			}
			return route.JS, true
		case "iframe", "frame":
			return route.HTML, true
		case "img", "audio", "video", "source", "track", "embed", "input":
			return route.Binary, true
		}
	case "action":
		if el.tag == "form" {
			return route.HTML, true
		}
	case "formaction":
		if el.tag == "button" || el.tag == "input" {
			return route.HTML, true
		}
	case "poster":
		if el.tag == "video" {
			return route.Binary, true
		}
	case "data":
		if el.tag == "object" {
			return route.Binary, true
		}
	case "background":
		return route.Binary, true
	case "manifest":
		if el.tag == "html" {
			return route.Manifest, true
		}
	}
	return "", false
}

func linkType(el *htmlNode) route.ResourceType {
	rel, _ := el.attr("rel")
	rels := strings.Fields(strings.ToLower(rel))
	has := func(want string) bool {
		for _, r := range rels {
			if r == want {
				return true
			}
		}
		return false
	}

	switch {
	case has("stylesheet"):
		return route.CSS
	case has("manifest"):
		return route.Manifest
	case has("modulepreload"):
		return route.Module
	case has("preload") || has("prefetch"):
		as, _ := el.attr("as")
		switch strings.ToLower(strings.TrimSpace(as)) {
		case "script", "worker":
			return route.JS
		case "style":
			return route.CSS
		case "document":
			return route.HTML
		}
	}
	return route.Binary
}

// scriptType reports how a script element's body and src are treated. ok is
// false for data blocks such as JSON or templates.
func scriptType(el *htmlNode) (route.ResourceType, bool) {
	typ, _ := el.attr("type")
	typ = strings.ToLower(strings.TrimSpace(typ))
	switch {
	case typ == "":
		return route.JS, true
	case typ == "module":
		return route.Module, true
	case isJSMIME(typ):
		return route.JS, true
	}
	return "", false
}
