package httpserver

import (
	"net/http"
	"time"
)

// writeSlack covers encoding and flushing the response after the issuance
// transaction has finished.
const writeSlack = 5 * time.Second

// New builds the HTTP server. maxRequest is the longest a handler may hold
// a transaction; the write deadline is derived from it so a request waiting
// on a scope lock is not cut off before the ledger gives up.
func New(addr string, handler http.Handler, maxRequest time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      maxRequest + writeSlack,
		IdleTimeout:       60 * time.Second,
	}
}
