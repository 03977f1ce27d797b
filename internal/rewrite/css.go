package rewrite

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/css/scanner"

	"github.com/GriffinCanCode/routeproxy/internal/route"
	"github.com/GriffinCanCode/routeproxy/internal/tree"
)

// The scanner preprocesses its input this way; doing it first keeps token
// offsets aligned with the text we splice into.
var cssPreprocess = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\f", "\n", "\x00", "\ufffd")

// cssNode is a stylesheet, a {...} block or a single token.
type cssNode struct {
	kind     string
	tok      *scanner.Token
	span     tree.Range
	children []*cssNode

	// importTarget marks the string or url() naming an @import.
	importTarget bool
}

func (n *cssNode) Kind() string { return n.kind }

func (n *cssNode) Range() (tree.Range, bool) { return n.span, true }

func (n *cssNode) Slots() []tree.Slot {
	if len(n.children) == 0 {
		return nil
	}
	kids := make([]tree.Node, len(n.children))
	for i, c := range n.children {
		kids[i] = c
	}
	return []tree.Slot{tree.Seq("children", kids...)}
}

func parseCSS(text string) (*cssNode, error) {
	root := &cssNode{kind: "stylesheet", span: tree.Range{Start: 0, End: len(text)}}
	stack := []*cssNode{root}
	sc := scanner.New(text)
	offset := 0
	pendingImport := false

	for {
		tok := sc.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			return root, nil
		case scanner.TokenError:
			return nil, fmt.Errorf("line %d column %d: %s", tok.Line, tok.Column, tok.Value)
		}

		r := tree.Range{Start: offset, End: offset + len(tok.Value)}
		offset = r.End
		top := stack[len(stack)-1]

		if tok.Type == scanner.TokenChar {
			switch tok.Value {
			case "{":
				block := &cssNode{kind: "block", span: tree.Range{Start: r.Start, End: len(text)}}
				top.children = append(top.children, block)
				stack = append(stack, block)
				pendingImport = false
				continue
			case "}":
				if len(stack) > 1 {
					top.span.End = r.End
					stack = stack[:len(stack)-1]
					pendingImport = false
					continue
				}
			}
		}

		n := &cssNode{kind: tok.Type.String(), tok: tok, span: r}
		switch tok.Type {
		case scanner.TokenAtKeyword:
			pendingImport = strings.EqualFold(tok.Value, "@import")
		case scanner.TokenS, scanner.TokenComment:
		case scanner.TokenURI, scanner.TokenString:
			n.importTarget = pendingImport
			pendingImport = false
		default:
			pendingImport = false
		}
		top.children = append(top.children, n)
	}
}

func (s *session) css(text string) (string, error) {
	normalized := cssPreprocess.Replace(text)
	if !utf8.ValidString(normalized) {
		// Invalid bytes come back from the scanner as a three byte U+FFFD.
		normalized = strings.ToValidUTF8(normalized, "\ufffd")
	}
	root, err := parseCSS(normalized)
	if err != nil {
		return "", &ParseError{Type: route.CSS, Err: err}
	}

	out, err := s.walk(root, normalized, func(ctx *tree.Context) error {
		n, ok := ctx.Node().(*cssNode)
		if !ok || n.tok == nil {
			return nil
		}

		switch {
		case n.tok.Type == scanner.TokenURI:
			t := route.Binary
			if n.importTarget {
				t = route.CSS
			}
			routed, changed, err := s.routeRef(cssURLValue(n.tok.Value), t, s.page)
			if err != nil || !changed {
				return err
			}
			return s.replace(ctx, "url("+cssQuote(routed)+")")

		case n.tok.Type == scanner.TokenString && n.importTarget:
			routed, changed, err := s.routeRef(cssUnquote(n.tok.Value), route.CSS, s.page)
			if err != nil || !changed {
				return err
			}
			return s.replace(ctx, cssQuote(routed))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if s.patcher.Len() == 0 {
		return text, nil
	}
	return out, nil
}

// cssURLValue extracts the reference from a url(...) token.
func cssURLValue(raw string) string {
	inner := strings.TrimSpace(raw[len("url(") : len(raw)-1])
	if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') {
		return cssUnquote(inner)
	}
	return cssUnescape(inner)
}

func cssUnquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return cssUnescape(s)
}

func cssUnescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			sb.WriteByte(s[i])
			i++
			continue
		}
		i++
		if i >= len(s) {
			break
		}
		if s[i] == '\n' {
			i++
			continue
		}

		j := i
		for j < len(s) && j-i < 6 && isHexDigit(s[j]) {
			j++
		}
		if j == i {
			sb.WriteByte(s[i])
			i++
			continue
		}
		code, _ := strconv.ParseUint(s[i:j], 16, 32)
		r := rune(code)
		if r == 0 || !utf8.ValidRune(r) {
			r = utf8.RuneError
		}
		sb.WriteRune(r)
		if j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
			j++
		}
		i = j
	}
	return sb.String()
}

// cssQuote renders s as a double-quoted CSS string.
func cssQuote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\a `)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
