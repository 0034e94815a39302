package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medistock/syncengine/entity"
	syncErrors "github.com/medistock/syncengine/errors"
	"github.com/medistock/syncengine/local"
	"github.com/medistock/syncengine/logging"
)

// ExponentialBackoff computes reconnect delays for the listener.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64

	current time.Duration
}

// NextDelay returns the next delay and advances the backoff.
func (b *ExponentialBackoff) NextDelay() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
		return b.current
	}
	next := time.Duration(float64(b.current) * b.Factor)
	if next > b.Max {
		next = b.Max
	}
	b.current = next
	return b.current
}

// Reset restarts the backoff from its initial delay.
func (b *ExponentialBackoff) Reset() {
	b.current = 0
}

// Handler receives change events that passed the echo filter.
type Handler func(ctx context.Context, kind entity.Kind, event ChangeEvent)

// Listener maintains a websocket subscription to the server's change feed
// and applies foreign changes through a handler.
type Listener struct {
	url     string
	apiKey  string
	filter  *EchoFilter
	handler Handler
	logger  *logging.Logger
	backoff ExponentialBackoff

	dial func(ctx context.Context, url string) (wsConn, error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// wsConn is the slice of *websocket.Conn the listener uses, extracted so
// tests can substitute a fake connection.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithLogger sets the listener's logger.
func WithLogger(logger *logging.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithBackoff overrides the reconnect backoff schedule.
func WithBackoff(b ExponentialBackoff) ListenerOption {
	return func(l *Listener) {
		l.backoff = b
	}
}

// NewListener creates a listener. Events from tables without a known entity
// kind are dropped.
func NewListener(url, apiKey string, filter *EchoFilter, handler Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		url:     url,
		apiKey:  apiKey,
		filter:  filter,
		handler: handler,
		logger:  logging.Default(),
		backoff: ExponentialBackoff{
			Initial: time.Second,
			Max:     30 * time.Second,
			Factor:  2,
		},
	}
	l.dial = func(ctx context.Context, url string) (wsConn, error) {
		header := map[string][]string{"apikey": {apiKey}}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins listening in a background goroutine. It is a no-op when the
// listener is already running.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	go l.run(runCtx)
}

// Stop disconnects and waits for the listener goroutine to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.running = false
	l.mu.Unlock()

	cancel()
	<-done
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := l.dial(ctx, l.url)
		if err != nil {
			l.logger.LogError(ctx, syncErrors.NewNetworkError(syncErrors.OpRealtime, err), "realtime connect failed")
			if !l.sleep(ctx, l.backoff.NextDelay()) {
				return
			}
			continue
		}

		l.backoff.Reset()
		l.logger.Info("realtime connected")

		// Close the socket when the context ends so ReadMessage unblocks.
		connDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-connDone:
			}
		}()

		err = l.readLoop(ctx, conn)
		close(connDone)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.LogError(ctx, syncErrors.NewNetworkError(syncErrors.OpRealtime, err), "realtime connection lost")
		}
		if !l.sleep(ctx, l.backoff.NextDelay()) {
			return
		}
	}
}

func (l *Listener) readLoop(ctx context.Context, conn wsConn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var event ChangeEvent
		if err := json.Unmarshal(data, &event); err != nil {
			l.logger.Warn("realtime message is not a change event", "error", err)
			continue
		}
		l.dispatch(ctx, event)
	}
}

func (l *Listener) dispatch(ctx context.Context, event ChangeEvent) {
	if !l.filter.ShouldProcess(event) {
		l.logger.Debug("dropped own echo", "table", event.Table, "type", string(event.Type))
		return
	}

	kind, ok := entity.ParseKind(event.Table)
	if !ok {
		l.logger.Debug("change event for unknown table", "table", event.Table)
		return
	}

	l.handler(ctx, kind, event)
}

func (l *Listener) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ApplyToLocal returns a Handler that mirrors foreign changes into the
// local store registry. Kinds without a registered store are skipped.
func ApplyToLocal(registry *local.Registry, logger *logging.Logger) Handler {
	return func(ctx context.Context, kind entity.Kind, event ChangeEvent) {
		store := registry.For(kind)
		if store == nil {
			return
		}

		var err error
		switch event.Type {
		case ChangeDelete:
			id := recordID(event.OldRecord)
			if id == "" {
				return
			}
			err = store.Delete(ctx, id)
			if errors.Is(err, local.ErrNotFound) {
				err = nil
			}
		default:
			id := recordID(event.Record)
			if id == "" {
				return
			}
			err = store.Upsert(ctx, id, event.Record)
		}

		if err != nil {
			logger.LogError(ctx, syncErrors.NewStorageError(syncErrors.OpApply, err), "apply remote change failed",
				slog.String("table", event.Table))
		}
	}
}

func recordID(record json.RawMessage) string {
	var holder struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(record, &holder); err != nil {
		return ""
	}
	return holder.ID
}
