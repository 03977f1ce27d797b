package rewrite

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/routeproxy/internal/route"
)

const samplePage = `<!DOCTYPE html>
<html manifest="app.webmanifest">
<head>
<base href="http://cdn.example.org/assets/">
<link rel="stylesheet" href="site.css" integrity="sha384-abc">
<link rel="icon" href="favicon.ico">
<script src="app.js" integrity="sha384-def" crossorigin></script>
<script type="module" src="mod.js"></script>
<style>body{background:url(bg.png)}</style>
<meta http-equiv="refresh" content="5; url=next.html">
</head>
<body style="background:url('body.png')">
<a href="/about">About</a>
<a href="#top">Top</a>
<a href="mailto:me@example.com">Mail</a>
<img src=logo.png srcset="a.png 1x, b.png 2x">
<form action="submit"><button formaction="alt">Go</button></form>
<iframe src="frame.html"></iframe>
<button onclick="location.href='x.html'; return false">Go</button>
<script>window.location.assign("/y")</script>
<script type="application/json">{"location": "z"}</script>
</body>
</html>
`

func TestHTMLRewriteDocument(t *testing.T) {
	const cdn = "http://cdn.example.org/assets/"

	out, err := New().HTML(samplePage, address(t, "http://example.com/dir/page.html"))
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)

	attr := func(selector, name string) string {
		v, ok := doc.Find(selector).First().Attr(name)
		require.True(t, ok, "%s[%s] missing", selector, name)
		return v
	}

	assert.Equal(t, routed(t, route.Manifest, cdn+"app.webmanifest"), attr("html", "manifest"))

	_, hasHref := doc.Find("base").Attr("href")
	assert.False(t, hasHref, "base href is removed once applied")

	assert.Equal(t, routed(t, route.CSS, cdn+"site.css"), attr(`link[rel="stylesheet"]`, "href"))
	assert.Equal(t, routed(t, route.Binary, cdn+"favicon.ico"), attr(`link[rel="icon"]`, "href"))
	assert.Zero(t, doc.Find("[integrity]").Length())

	assert.Contains(t, doc.Find("style").Text(), routed(t, route.Binary, cdn+"bg.png"))
	assert.Equal(t, "5; url="+routed(t, route.HTML, cdn+"next.html"), attr("meta", "content"))
	assert.Contains(t, attr("body", "style"), routed(t, route.Binary, cdn+"body.png"))

	links := doc.Find("a")
	require.Equal(t, 3, links.Length())
	assert.Equal(t, routed(t, route.HTML, "http://cdn.example.org/about"), links.Eq(0).AttrOr("href", ""))
	assert.Equal(t, "#top", links.Eq(1).AttrOr("href", ""))
	assert.Equal(t, "mailto:me@example.com", links.Eq(2).AttrOr("href", ""))

	assert.Equal(t, routed(t, route.Binary, cdn+"logo.png"), attr("img", "src"))
	assert.Equal(t,
		routed(t, route.Binary, cdn+"a.png")+" 1x, "+routed(t, route.Binary, cdn+"b.png")+" 2x",
		attr("img", "srcset"))

	assert.Equal(t, routed(t, route.HTML, cdn+"submit"), attr("form", "action"))
	assert.Equal(t, routed(t, route.HTML, cdn+"alt"), attr("button[formaction]", "formaction"))
	assert.Equal(t, routed(t, route.HTML, cdn+"frame.html"), attr("iframe", "src"))
	assert.Equal(t, `__rw$.location.href='x.html'; return false`, attr("button[onclick]", "onclick"))

	inline := doc.Find("script:not([src]):not([type])").Text()
	assert.Equal(t, `window[__rw$.p("location")].assign("/y")`, inline)
	assert.Equal(t, `{"location": "z"}`, doc.Find(`script[type="application/json"]`).Text())
}

func TestHTMLScriptSources(t *testing.T) {
	const cdn = "http://cdn.example.org/assets/"

	out, err := New().HTML(samplePage, address(t, "http://example.com/dir/page.html"))
	require.NoError(t, err)

	doc, err := htmlquery.Parse(strings.NewReader(out))
	require.NoError(t, err)

	scripts := htmlquery.Find(doc, "//script[@src]")
	require.Len(t, scripts, 2)
	assert.Equal(t, routed(t, route.JS, cdn+"app.js"), htmlquery.SelectAttr(scripts[0], "src"))
	assert.Equal(t, routed(t, route.Module, cdn+"mod.js"), htmlquery.SelectAttr(scripts[1], "src"))

	crossorigin := htmlquery.FindOne(doc, "//script[@crossorigin]")
	require.NotNil(t, crossorigin, "unrelated attributes survive")
}

func TestHTMLExactEdits(t *testing.T) {
	const page = "http://example.com/dir/page.html"

	tests := []struct {
		name  string
		input string
		want  func(t *testing.T) string
	}{
		{
			name:  "unquoted value is quoted",
			input: `<img src=a.png alt=x>`,
			want: func(t *testing.T) string {
				return `<img src="` + routed(t, route.Binary, "http://example.com/dir/a.png") + `" alt=x>`
			},
		},
		{
			name:  "entities are decoded before routing",
			input: `<a href='/q?x=1&amp;y=2'>q</a>`,
			want: func(t *testing.T) string {
				return `<a href="` + strings.ReplaceAll(routed(t, route.HTML, "http://example.com/q?x=1&y=2"), "&", "&amp;") + `">q</a>`
			},
		},
		{
			name:  "integrity is removed with its whitespace",
			input: `<script integrity="sha256-x" async></script>`,
			want:  func(*testing.T) string { return `<script async></script>` },
		},
		{
			name:  "untouched markup is byte for byte",
			input: "<div  class = 'x' >Hi &amp; bye</div><!-- <a href=x> -->\n<p>",
			want:  func(*testing.T) string { return "<div  class = 'x' >Hi &amp; bye</div><!-- <a href=x> -->\n<p>" },
		},
		{
			name:  "bad inline script is kept",
			input: `<script>var = ;</script><a href="b">b</a>`,
			want: func(t *testing.T) string {
				return `<script>var = ;</script><a href="` + routed(t, route.HTML, "http://example.com/dir/b") + `">b</a>`
			},
		},
		{
			name:  "inline module script",
			input: `<script type="module">import a from "./a.js"; location.href="/x"</script>`,
			want: func(t *testing.T) string {
				return `<script type="module">import a from "` + routed(t, route.Module, "http://example.com/dir/a.js") +
					`"; __rw$.location.href="/x"</script>`
			},
		},
		{
			name:  "inline module dynamic import",
			input: `<script type="module">const { run } = await import("/boot.mjs"); run(top.location)</script>`,
			want: func(t *testing.T) string {
				return `<script type="module">const { run } = await import("` + routed(t, route.Module, "http://example.com/boot.mjs") +
					`"); run(top[__rw$.p("location")])</script>`
			},
		},
		{
			name:  "non-script types are kept",
			input: `<script type="text/template"><a href="x">{{location}}</a></script>`,
			want: func(*testing.T) string {
				return `<script type="text/template"><a href="x">{{location}}</a></script>`
			},
		},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.HTML(tt.input, address(t, page))
			require.NoError(t, err)
			assert.Equal(t, tt.want(t), out)
		})
	}
}

func TestHTMLDataURLFrame(t *testing.T) {
	e := New()
	page := address(t, "http://example.com/dir/page.html")

	out, err := e.HTML(`<iframe src="data:text/html,<a href=x.html>x</a>"></iframe>`, page)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	src, ok := doc.Find("iframe").Attr("src")
	require.True(t, ok)

	d, err := route.ParseDataURL(src)
	require.NoError(t, err)
	assert.Equal(t, "text/html", d.MIME)
	assert.Equal(t, `<a href="`+routed(t, route.HTML, "http://example.com/dir/x.html")+`">x</a>`, string(d.Payload))
}

func TestHTMLDataURLManifest(t *testing.T) {
	page := address(t, "http://example.com/dir/page.html")

	out, err := New().HTML(`<link rel="manifest" href='data:application/json,{"start_url":"/a"}'>`, page)
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	href, ok := doc.Find("link").Attr("href")
	require.True(t, ok)

	d, err := route.ParseDataURL(href)
	require.NoError(t, err)
	assert.Equal(t, "application/json", d.MIME)
	assert.JSONEq(t, `{"start_url":"`+routed(t, route.HTML, "http://example.com/a")+`"}`, string(d.Payload))
}

func TestParseSrcset(t *testing.T) {
	tests := []struct {
		in   string
		want []srcCandidate
	}{
		{in: "a.png", want: []srcCandidate{{url: "a.png"}}},
		{in: "a.png 1x,b.png 2x", want: []srcCandidate{{url: "a.png", descriptor: "1x"}, {url: "b.png", descriptor: "2x"}}},
		{in: " a.png, b.png 480w ", want: []srcCandidate{{url: "a.png"}, {url: "b.png", descriptor: "480w"}}},
		{in: "", want: nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseSrcset(tt.in), tt.in)
	}
}
