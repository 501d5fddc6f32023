package oauth

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/mschirtzinger/daysync/internal/cloud"
)

//go:embed callback.html
var callbackPage []byte

// Defaults for Flow.
const (
	DefaultListenAddr = "127.0.0.1:6789"
	DefaultTimeout    = 5 * time.Minute
)

// result resolves a pending request.
type result struct {
	token *oauth2.Token
	err   error
}

type pending struct {
	provider cloud.Type
	done     chan result
}

// Flow runs popup authorizations. It is safe for concurrent use; each
// Initiate call waits for its own state nonce.
type Flow struct {
	addr    string
	timeout time.Duration
	opener  Opener
	now     func() time.Time
	logger  *slog.Logger

	// Pending requests by state nonce.
	mu      sync.Mutex
	pending map[string]*pending

	// Loopback server lifecycle.
	srvMu    sync.Mutex
	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// Option configures a Flow.
type Option func(*Flow)

// WithListenAddr sets the loopback address. Port 0 picks a free port.
func WithListenAddr(addr string) Option {
	return func(f *Flow) { f.addr = addr }
}

// WithTimeout sets how long Initiate waits for the callback.
func WithTimeout(d time.Duration) Option {
	return func(f *Flow) { f.timeout = d }
}

// WithOpener sets how the authorization page is shown.
func WithOpener(o Opener) Option {
	return func(f *Flow) { f.opener = o }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) { f.logger = logger }
}

// WithClock sets the clock used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// NewFlow returns a stopped flow. The server starts on the first Initiate
// or an explicit Start.
func NewFlow(opts ...Option) *Flow {
	f := &Flow{
		addr:    DefaultListenAddr,
		timeout: DefaultTimeout,
		opener:  BrowserOpener{},
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
		pending: make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Handler returns the routes of the loopback server.
func (f *Flow) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, f.handleCallback)
	mux.HandleFunc("/oauth/ws", f.handleWebSocket)
	mux.HandleFunc("/health", f.handleHealth)
	return mux
}

// Start begins listening. Calling Start on a running flow is a no-op.
func (f *Flow) Start() error {
	f.srvMu.Lock()
	defer f.srvMu.Unlock()
	if f.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", f.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.addr, err)
	}
	f.listener = ln
	f.server = &http.Server{
		Handler:      f.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	srv := f.server
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.logger.Debug("oauth callback server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("oauth callback server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down. Pending requests keep waiting until their
// own timeout.
func (f *Flow) Stop() error {
	f.srvMu.Lock()
	srv := f.server
	f.server = nil
	f.listener = nil
	f.srvMu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	f.wg.Wait()
	return nil
}

// Origin returns the loopback origin, e.g. http://127.0.0.1:6789.
func (f *Flow) Origin() string {
	f.srvMu.Lock()
	defer f.srvMu.Unlock()
	if f.listener != nil {
		return "http://" + f.listener.Addr().String()
	}
	return "http://" + f.addr
}

// RedirectURL is the callback URL registered with the providers.
func (f *Flow) RedirectURL() string {
	return f.Origin() + CallbackPath
}

// Pending returns the number of requests awaiting a callback.
func (f *Flow) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Initiate runs one authorization for provider and returns its token. It
// fails with ErrPopupBlocked when the page cannot be opened, ErrTimeout
// when no callback arrives in time, or ctx.Err() on cancellation. The
// pending request is removed in every case.
func (f *Flow) Initiate(ctx context.Context, provider cloud.Type, clientID string) (*oauth2.Token, error) {
	if err := f.Start(); err != nil {
		return nil, err
	}

	state := uuid.NewString()
	authURL, err := AuthURL(provider, clientID, f.RedirectURL(), state)
	if err != nil {
		return nil, err
	}

	p := &pending{provider: provider, done: make(chan result, 1)}
	f.mu.Lock()
	f.pending[state] = p
	f.mu.Unlock()
	defer f.remove(state)

	f.logger.Info("opening authorization page", "provider", provider)
	if err := f.opener.Open(authURL); err != nil {
		return nil, &PopupBlockedError{Err: err}
	}

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case res := <-p.done:
		return res.token, res.err
	case <-timer.C:
		return nil, fmt.Errorf("%s authorization: %w after %s", provider, ErrTimeout, f.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Authenticator adapts the flow to the cloud.Authenticator shape used by
// the drive providers.
func (f *Flow) Authenticator(provider cloud.Type, clientID string) cloud.Authenticator {
	return func(ctx context.Context) (*oauth2.Token, error) {
		return f.Initiate(ctx, provider, clientID)
	}
}

func (f *Flow) remove(state string) {
	f.mu.Lock()
	delete(f.pending, state)
	f.mu.Unlock()
}

// Resolve delivers msg to the pending request with the same state. It
// reports whether a request was resolved; unknown or already resolved
// states are ignored.
func (f *Flow) Resolve(msg Message) bool {
	f.mu.Lock()
	p, ok := f.pending[msg.State]
	if ok {
		delete(f.pending, msg.State)
	}
	f.mu.Unlock()
	if !ok {
		f.logger.Warn("ignoring oauth message for unknown state", "type", msg.Type)
		return false
	}

	var res result
	switch msg.Type {
	case MessageSuccess:
		if msg.Token == "" {
			res.err = &AuthorizationError{Provider: string(p.provider), Reason: "empty access token"}
			break
		}
		tok := &oauth2.Token{AccessToken: msg.Token, TokenType: "Bearer"}
		if msg.ExpiresIn > 0 {
			tok.Expiry = f.now().Add(time.Duration(msg.ExpiresIn) * time.Second)
		}
		res.token = tok
	case MessageError:
		res.err = &AuthorizationError{Provider: string(p.provider), Reason: msg.Error}
	default:
		res.err = &AuthorizationError{Provider: string(p.provider), Reason: fmt.Sprintf("unexpected message type %q", msg.Type)}
	}
	p.done <- res
	return true
}

func (f *Flow) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(callbackPage)
}

// handleWebSocket reads one message from the callback page. The default
// accept options reject handshakes whose Origin is not this server.
func (f *Flow) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var msg Message
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		f.logger.Warn("failed to read oauth message", "error", err)
		return
	}
	f.Resolve(msg)

	_ = wsjson.Write(ctx, conn, map[string]string{"status": "ok"})
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (f *Flow) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"pending": f.Pending(),
	})
}
