package rewrite

import (
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"

	"github.com/GriffinCanCode/routeproxy/internal/tree"
)

// goja reads classic scripts only. Module syntax and newer statements are
// masked with same-length text before parsing, so every AST offset is also
// an offset into the original source.

// dynamicImport replaces the import keyword of import() and import.meta.
const dynamicImport = "$mport"

// Module bodies are parsed as an async function body so top-level await is
// accepted.
const (
	modulePrefix = "(async function(){"
	moduleSuffix = "\n})"
)

type jsToken struct {
	tt    js.TokenType
	text  string
	start int
}

func (t jsToken) end() int { return t.start + len(t.text) }

// maskedJS is a parseable copy of a source with the references that
// masking hid from the parser.
type maskedJS struct {
	text string
	// specifiers are the string literals naming modules in import and
	// export declarations.
	specifiers []tree.Range
	// imports holds the offsets of import() callees.
	imports map[int]bool
}

// maskJS prepares src for goja. Declarations are only recognized in
// modules. Source the lexer rejects is returned as it is and left for the
// parser to report.
func maskJS(src string, module bool) maskedJS {
	m := maskedJS{text: src, imports: make(map[int]bool)}
	toks, err := lexJS(src)
	if err != nil {
		return m
	}

	buf := []byte(src)
	depth := 0
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		switch tok.tt {
		case js.OpenBraceToken, js.OpenParenToken, js.OpenBracketToken, js.TemplateStartToken:
			depth++
		case js.CloseBraceToken, js.CloseParenToken, js.CloseBracketToken, js.TemplateEndToken:
			depth--
		case js.ImportToken:
			if propertyAt(toks, i) {
				continue
			}
			switch tokenAt(toks, i+1) {
			case js.OpenParenToken:
				m.imports[tok.start] = true
				copy(buf[tok.start:], dynamicImport)
			case js.DotToken:
				copy(buf[tok.start:], dynamicImport)
			default:
				if module && depth == 0 {
					i = m.declaration(buf, toks, i)
				}
			}
		case js.ExportToken:
			if !module || depth != 0 || propertyAt(toks, i) {
				continue
			}
			switch tokenAt(toks, i+1) {
			case js.DefaultToken:
				// The default export becomes an expression statement.
				copy(buf[tok.start:], "void  ")
				blank(buf, toks[i+1].start, toks[i+1].end())
				i++
			case js.OpenBraceToken, js.MulToken:
				i = m.declaration(buf, toks, i)
			default:
				blank(buf, tok.start, tok.end())
			}
		case js.AwaitToken:
			if i > 0 && toks[i-1].tt == js.ForToken {
				blank(buf, tok.start, tok.end())
			}
		}
	}
	m.text = string(buf)
	return m
}

// declaration blanks the import or export declaration starting at toks[i]
// and records its specifier. It returns the index of the declaration's last
// token. An import without a specifier is left for the parser to reject.
func (m *maskedJS) declaration(buf []byte, toks []jsToken, i int) int {
	export := toks[i].tt == js.ExportToken
	spec, end, braces := -1, i, 0
	for j := i + 1; j < len(toks) && spec < 0; j++ {
		t := toks[j]
		end = j
		if t.tt == js.StringToken && (j == i+1 || toks[j-1].tt == js.FromToken) {
			spec = j
			break
		}
		if t.tt == js.SemicolonToken {
			break
		}
		if t.tt == js.OpenBraceToken {
			braces++
		}
		if t.tt == js.CloseBraceToken {
			braces--
			if braces == 0 && export && tokenAt(toks, j+1) != js.FromToken {
				break
			}
		}
	}
	if spec < 0 && !export {
		return i
	}

	if spec >= 0 {
		// Import attributes: with { type: "json" }
		if next := end + 1; next < len(toks) && (toks[next].tt == js.WithToken || toks[next].text == "assert") &&
			tokenAt(toks, next+1) == js.OpenBraceToken {
			end = next + 1
			for end < len(toks)-1 && toks[end].tt != js.CloseBraceToken {
				end++
			}
		}
		if tokenAt(toks, end+1) == js.SemicolonToken {
			end++
		}
		m.specifiers = append(m.specifiers, tree.Range{Start: toks[spec].start, End: toks[spec].end()})
	}
	blank(buf, toks[i].start, toks[end].end())
	return end
}

// lexJS returns the significant tokens of src with their byte offsets.
func lexJS(src string) ([]jsToken, error) {
	l := js.NewLexer(parse.NewInputString(src))

	var (
		toks   []jsToken
		offset int
	)
	for {
		tt, data := l.Next()
		if tt == js.ErrorToken {
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return toks, nil
		}
		if (tt == js.DivToken || tt == js.DivEqToken) && (len(toks) == 0 || !endsValue(toks[len(toks)-1])) {
			if tt, data = l.RegExp(); tt == js.ErrorToken {
				return nil, l.Err()
			}
		}

		tok := jsToken{tt: tt, text: string(data), start: offset}
		offset += len(data)
		switch tt {
		case js.WhitespaceToken, js.LineTerminatorToken, js.CommentToken, js.CommentLineTerminatorToken:
			continue
		}
		toks = append(toks, tok)
	}
}

// Words after which a slash starts a regular expression.
var operatorWords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true, "default": true,
	"extends": true,
}

// endsValue reports whether a slash after t is division.
func endsValue(t jsToken) bool {
	switch t.tt {
	case js.StringToken, js.TemplateToken, js.TemplateEndToken, js.RegExpToken, js.PrivateIdentifierToken,
		js.CloseParenToken, js.CloseBracketToken, js.IncrToken, js.DecrToken:
		return true
	}
	if js.IsNumeric(t.tt) {
		return true
	}
	return js.IsIdentifierName(t.tt) && !operatorWords[t.text]
}

func tokenAt(toks []jsToken, i int) js.TokenType {
	if i < 0 || i >= len(toks) {
		return js.ErrorToken
	}
	return toks[i].tt
}

// propertyAt reports whether toks[i] is a property name after a dot.
func propertyAt(toks []jsToken, i int) bool {
	prev := tokenAt(toks, i-1)
	return prev == js.DotToken || prev == js.OptChainToken
}

// blank overwrites buf[start:end] with spaces, keeping line breaks so
// automatic semicolon insertion is unchanged.
func blank(buf []byte, start, end int) {
	for i := start; i < end && i < len(buf); i++ {
		if buf[i] != '\n' && buf[i] != '\r' {
			buf[i] = ' '
		}
	}
}

// isURLSpecifier reports whether a module specifier is a URL. Bare
// specifiers such as "react" name import map entries.
func isURLSpecifier(spec string) bool {
	if strings.HasPrefix(spec, "/") || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		return true
	}
	u, err := url.Parse(spec)
	return err == nil && u.Scheme != ""
}
