// Package api exposes quarry's retrieval core over HTTP as a JSON API.
//
// Routes are registered on a stdlib ServeMux behind a middleware stack of
// panic recovery, request IDs, request logging, CORS and per-IP rate
// limiting. Health probes sit outside the stack so orchestrators are never
// rate limited out of /health.
package api
