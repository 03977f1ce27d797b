// Package http exposes the rewriters and the route mapping over HTTP.
//
// POST /v1/rewrite/:type rewrites the request body as js, mjs, css, html or
// manifest, or as whatever type=auto detects from the Content-Type and the
// payload. The page address comes from the url query parameter. Bodies may be
// gzip encoded and in any charset x/net/html/charset understands; the
// response is always UTF-8.
//
// GET /v1/route and GET /v1/resolve/*route map between addresses and routes
// without touching any payload.
package http
