package infra_ws

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fastvote/client-go/internal/model"
)

const (
	eventInitialResults = "initial_results"
	eventVoteUpdate     = "vote_update"

	defaultReconnectDelay = 3 * time.Second
)

type envelope struct {
	Type string `json:"type"`
}

// Feed owns the live result channel for one room: it dials, reads snapshot
// messages and hands them to the apply callback in arrival order. A dropped
// connection is redialed after a fixed delay until Close is called; Close
// during the delay cancels the pending attempt. Malformed messages are
// logged and discarded, they never clear applied results.
type Feed struct {
	url    string
	apply  func(model.Results)
	dialer *websocket.Dialer
	delay  time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

type FeedOption func(*Feed)

func WithDialer(dialer *websocket.Dialer) FeedOption {
	return func(f *Feed) {
		f.dialer = dialer
	}
}

func WithReconnectDelay(delay time.Duration) FeedOption {
	return func(f *Feed) {
		f.delay = delay
	}
}

func WithLogger(logger *slog.Logger) FeedOption {
	return func(f *Feed) {
		f.logger = logger
	}
}

func New(url string, apply func(model.Results), opts ...FeedOption) *Feed {
	f := &Feed{
		url:    url,
		apply:  apply,
		dialer: websocket.DefaultDialer,
		delay:  defaultReconnectDelay,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run blocks until Close. Callers start it on its own goroutine.
func (f *Feed) Run() {
	for {
		select {
		case <-f.done:
			return
		default:
		}

		conn, _, err := f.dialer.Dial(f.url, nil)
		if err != nil {
			f.logger.Warn("feed dial failed",
				slog.String("url", f.url), slog.String("error", err.Error()))
			if !f.waitReconnect() {
				return
			}
			continue
		}

		f.setConn(conn)

		// Close may have run while the dial was in flight; the socket it
		// could not see must not survive it.
		select {
		case <-f.done:
			conn.Close()
			return
		default:
		}

		f.readLoop(conn)
		f.setConn(nil)
		conn.Close()

		if !f.waitReconnect() {
			return
		}
	}
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
			default:
				f.logger.Warn("feed connection lost", slog.String("error", err.Error()))
			}
			return
		}

		snap, err := decodeSnapshot(raw)
		if err != nil {
			f.logger.Warn("discarding feed message", slog.String("error", err.Error()))
			continue
		}
		if snap == nil {
			continue
		}

		f.apply(*snap)
	}
}

func decodeSnapshot(raw []byte) (*model.Results, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope : %w", err)
	}

	switch env.Type {
	case eventInitialResults, eventVoteUpdate:
	default:
		// Unknown event types are not an error, just not ours.
		return nil, nil
	}

	var snap model.Results
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("malformed snapshot : %w", err)
	}
	if snap.Tally == nil {
		return nil, fmt.Errorf("snapshot without results")
	}
	return &snap, nil
}

// waitReconnect sleeps the fixed delay before the next dial. It reports
// false when Close happened first, which must prevent the reconnect.
func (f *Feed) waitReconnect() bool {
	timer := time.NewTimer(f.delay)
	defer timer.Stop()

	select {
	case <-f.done:
		return false
	case <-timer.C:
		return true
	}
}

func (f *Feed) setConn(conn *websocket.Conn) {
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
}

// Close tears the feed down: the active socket is closed and any pending
// reconnect timer is cancelled. Safe to call more than once.
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)

		f.mu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.mu.Unlock()
	})
	return nil
}
