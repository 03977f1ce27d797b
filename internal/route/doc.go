// Package route maps resource addresses to proxy routes and back.
//
// A route has the form
//
//	{base}{type}/{encoded}{fragment}
//
// where base is a slash-delimited directory such as "/route/", type is one of
// js, mjs, css, html, manifest, binary or xhr, encoded is the codec-escaped
// origin, path and query of the target, and fragment is the target's "#..."
// suffix copied verbatim.
//
// Only http and https addresses are routable. data: URLs never become routes;
// rewriters re-embed them in place using ParseDataURL and DataURL.String.
package route
