// Package server exposes the search service over HTTP with a JSON API.
//
// Routes:
//
//	GET  /healthz    catalog size, fingerprint and dimension
//	POST /v1/search  {"query": "...", "top_k": 10, "use_ai": false}
//	POST /v1/batch   {"items": [{"query": "..."}], "top_k": 5, "use_ai": false}
//	GET  /metrics    Prometheus metrics
//
// Validation failures answer 400; any other failure answers 500.
package server
