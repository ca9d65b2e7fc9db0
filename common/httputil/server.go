package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// HTTPServer is an http.Server bound to its listener before Serve starts, so
// Addr is valid as soon as StartHTTPServer returns.
type HTTPServer struct {
	name     string
	srv      *http.Server
	listener net.Listener
}

func StartHTTPServer(name string, handler http.Handler, host string, port int) (*HTTPServer, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s listener: %w", name, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "name", name, "err", err)
		}
	}()
	log.Info("http server started", "name", name, "addr", listener.Addr())
	return &HTTPServer{name: name, srv: srv, listener: listener}, nil
}

func (s *HTTPServer) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop %s server: %w", s.name, err)
	}
	return nil
}
