package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Write timeout stays open so the router's own
// request timeout decides.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
