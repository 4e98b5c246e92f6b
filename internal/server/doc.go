// Package server exposes the HTTP API: health, statistics, sanitized
// configuration, transcript readback, Prometheus metrics and the live caption
// websocket.
package server
