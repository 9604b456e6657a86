// Package fetch obtains source image bytes for the fetch stage.
//
// data: URIs are decoded locally. http and https sources are fetched with a
// plain GET carrying the configured (and extension-overridable) User-Agent,
// throttled by a token bucket and capped in size. Any other scheme is
// rejected before a request is made.
package fetch
