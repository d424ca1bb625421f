// Package oauth provides the loopback callback server and browser opener
// used by the interactive login.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/logger"
)

// ErrCallbackTimeout is returned when no redirect arrives in time.
var ErrCallbackTimeout = errors.New("timed out waiting for authorization callback")

// CallbackServer listens on the loopback address named by the registered
// redirect URI and captures the first redirect that reaches its path.
// It does not validate the redirect; the full URL is handed back so the
// flow controller can check it against the pending session.
type CallbackServer struct {
	mu       sync.Mutex
	redirect *url.URL
	port     int
	urlChan  chan string
	errChan  chan error
	server   *http.Server
	listener net.Listener
}

// NewCallbackServer creates a server for redirectURI, which must be an
// http URL on a loopback host with an explicit port.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect uri: %v", domain.ErrInvalidInput, err)
	}
	if !strings.EqualFold(u.Scheme, "http") {
		return nil, fmt.Errorf("%w: loopback login needs an http redirect uri, got %q", domain.ErrInvalidInput, u.Scheme)
	}
	if !IsLoopbackHost(u.Hostname()) {
		return nil, fmt.Errorf("%w: redirect host %q is not a loopback address", domain.ErrInvalidInput, u.Hostname())
	}
	port, err := parsePort(u.Port())
	if err != nil {
		return nil, err
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return &CallbackServer{
		redirect: u,
		port:     port,
		urlChan:  make(chan string, 1),
		errChan:  make(chan error, 1),
	}, nil
}

func parsePort(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: redirect uri needs an explicit port", domain.ErrInvalidInput)
	}
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid redirect port %q", domain.ErrInvalidInput, s)
	}
	return port, nil
}

// IsLoopbackHost reports whether host names the local machine.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start binds the listener and serves in the background.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc(s.redirect.Path, s.handleCallback)

	addr := net.JoinHostPort(listenHost(s.redirect.Hostname()), strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// The goroutine serves its own copies; Stop may clear the fields first.
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.server = srv
	s.listener = listener
	errChan := s.errChan

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	logger.Debug("callback server listening on %s%s", addr, s.redirect.Path)
	return nil
}

func listenHost(host string) string {
	if strings.EqualFold(host, "localhost") {
		return "127.0.0.1"
	}
	return host
}

// handleCallback records the redirect and tells the user to go back to the
// terminal. Only the first redirect is kept.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	captured := s.callbackURL(r)

	select {
	case s.urlChan <- captured:
	default:
		logger.Debug("ignoring repeated callback")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = errParam
		}
		_, _ = fmt.Fprint(w, resultHTML("Authorization was not granted", desc))
		return
	}
	_, _ = fmt.Fprint(w, resultHTML("Authorization received", "You can close this window and return to the terminal."))
}

// callbackURL rebuilds the redirect as the provider sent it, using the
// configured scheme and host so it compares equal to the redirect URI.
func (s *CallbackServer) callbackURL(r *http.Request) string {
	u := url.URL{
		Scheme:   s.redirect.Scheme,
		Host:     s.redirect.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
	return u.String()
}

// WaitForCallback blocks until a redirect arrives, the server fails, or
// ctx ends.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (string, error) {
	select {
	case u := <-s.urlChan:
		return u, nil
	case err := <-s.errChan:
		return "", err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrCallbackTimeout
		}
		return "", ctx.Err()
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *CallbackServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	// Serve may not have picked the listener up yet.
	if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}
	s.server = nil
	s.listener = nil
	return err
}

// Port returns the port the server binds.
func (s *CallbackServer) Port() int {
	return s.port
}

// RedirectURI returns the redirect URI the server answers.
func (s *CallbackServer) RedirectURI() string {
	return s.redirect.String()
}

// FindAvailablePort returns the first free loopback port in the range.
func FindAvailablePort(startPort, endPort int) (int, error) {
	for port := startPort; port <= endPort; port++ {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			_ = listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port in range %d-%d", startPort, endPort)
}

// LoopbackRedirectURI returns the default redirect URI for a port.
func LoopbackRedirectURI(port int) string {
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

func resultHTML(title, message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>SuiteLink - Authorization</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: #FAFAFA;
        }
        .container {
            text-align: center;
            background: white;
            padding: 48px 64px;
            border-radius: 16px;
            border: 1px solid #C7C8CC;
        }
        h1 { color: #333F50; margin: 0 0 8px 0; font-size: 24px; }
        p { color: #7B8088; margin: 0; font-size: 16px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>`, html.EscapeString(title), html.EscapeString(message))
}
