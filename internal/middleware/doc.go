// Package middleware provides the HTTP middleware of the refiner API:
// W3C extended-format access logging, Prometheus request metrics and gzip
// compression of JSON responses.
package middleware
