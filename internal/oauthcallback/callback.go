// Package oauthcallback runs the short-lived local listener an OAuth
// authorization-code redirect lands on.
package oauthcallback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

type result struct {
	code string
	err  error
}

// Receiver accepts one authorization redirect.
type Receiver struct {
	listener net.Listener
	server   *http.Server
	state    string
	log      zerolog.Logger
	results  chan result
}

// Listen starts a receiver on addr. When state is not empty, redirects
// carrying a different state are rejected.
func Listen(addr, state string, log zerolog.Logger) (*Receiver, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("Listen: %s: %w", addr, err)
	}

	r := &Receiver{
		listener: ln,
		state:    state,
		log:      log,
		results:  make(chan result, 1),
	}

	router := chi.NewRouter()
	router.Use(recovery(log), requestLogger(log))
	router.Get("/*", r.handle)
	r.server = &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.deliver(result{err: fmt.Errorf("Listen: serve: %w", err)})
		}
	}()

	log.Debug().Str("addr", ln.Addr().String()).Msg("Waiting for OAuth redirect")
	return r, nil
}

// Addr is the address the receiver is bound to.
func (r *Receiver) Addr() string {
	return r.listener.Addr().String()
}

func (r *Receiver) deliver(res result) {
	select {
	case r.results <- res:
	default:
	}
}

func (r *Receiver) handle(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	if msg := q.Get("error"); msg != "" {
		if desc := q.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		r.deliver(result{err: fmt.Errorf("authorization denied: %s", msg)})
		writeText(w, http.StatusOK, "Authorisation failed. You can close this window.")
		return
	}
	if r.state != "" && q.Get("state") != r.state {
		writeText(w, http.StatusBadRequest, "State mismatch")
		return
	}
	code := q.Get("code")
	if code == "" {
		writeText(w, http.StatusBadRequest, "Missing code")
		return
	}

	r.deliver(result{code: code})
	writeText(w, http.StatusOK, "Authorisation complete. You can close this window.")
}

// Wait blocks until a redirect carrying a code arrives or ctx ends, then
// shuts the listener down.
func (r *Receiver) Wait(ctx context.Context) (string, error) {
	defer r.Close()

	select {
	case res := <-r.results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the listener.
func (r *Receiver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return r.server.Shutdown(ctx)
}

// WaitForCode listens on addr and returns the first authorization code
// redirected to it.
func WaitForCode(ctx context.Context, addr, state string, log zerolog.Logger) (string, error) {
	r, err := Listen(addr, state, log)
	if err != nil {
		return "", err
	}
	return r.Wait(ctx)
}
