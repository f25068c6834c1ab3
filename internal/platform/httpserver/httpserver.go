// Package httpserver owns the registry's HTTP listener defaults and its
// shutdown grace period.
package httpserver

import (
	"context"
	"net/http"
	"time"
)

const (
	// DefaultAddr is the listen address used when configuration leaves it
	// empty.
	DefaultAddr = ":8080"

	readHeaderTimeout = 5 * time.Second
	shutdownGrace     = 10 * time.Second
)

// New builds the registry's HTTP server. An empty addr falls back to
// DefaultAddr.
func New(addr string, handler http.Handler) *http.Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Shutdown drains in-flight requests, bounded by the shutdown grace period.
// Requests still running when the grace elapses are abandoned.
func Shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(ctx)
}
