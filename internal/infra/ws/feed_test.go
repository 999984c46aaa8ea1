package infra_ws

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"

	"github.com/fastvote/client-go/internal/model"
)

const testDelay = 50 * time.Millisecond

// pushServer upgrades every request and hands the server side of the
// socket to the test.
type pushServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	dials int
	conns chan *websocket.Conn
}

func newPushServer() *pushServer {
	ps := &pushServer{
		conns: make(chan *websocket.Conn, 4),
	}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ps.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.mu.Lock()
		ps.dials++
		ps.mu.Unlock()
		ps.conns <- conn
	}))
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func (ps *pushServer) dialCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.dials
}

func (ps *pushServer) accept(t provider.T) *websocket.Conn {
	select {
	case conn := <-ps.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("no websocket connection arrived")
		return nil
	}
}

func waitSnapshot(t provider.T, ch <-chan model.Results) model.Results {
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot arrived")
		return model.Results{}
	}
}

func assertNoSnapshot(t provider.T, ch <-chan model.Results) {
	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot: %+v", snap)
	case <-time.After(150 * time.Millisecond):
	}
}

type FeedUnitSuite struct {
	suite.Suite
}

func (s *FeedUnitSuite) TestFeed(t provider.T) {
	t.Run("Should apply pushed snapshots in arrival order", func(t provider.T) {
		ps := newPushServer()
		defer ps.srv.Close()

		applied := make(chan model.Results, 8)
		feed := New(ps.url(), func(snap model.Results) { applied <- snap },
			WithReconnectDelay(testDelay))
		go feed.Run()
		defer feed.Close()

		conn := ps.accept(t)
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"initial_results","room_uuid":"r1","results":{"A":1}}`)))
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"vote_update","room_uuid":"r1","results":{"A":2}}`)))

		first := waitSnapshot(t, applied)
		second := waitSnapshot(t, applied)

		assert.Equal(t, 1, first.Count("A"))
		assert.Equal(t, 2, second.Count("A"))
	})

	t.Run("Should drop malformed and unknown messages without dying", func(t provider.T) {
		ps := newPushServer()
		defer ps.srv.Close()

		applied := make(chan model.Results, 8)
		feed := New(ps.url(), func(snap model.Results) { applied <- snap },
			WithReconnectDelay(testDelay))
		go feed.Run()
		defer feed.Close()

		conn := ps.accept(t)
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{nope`)))
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"lobby_update"}`)))
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"vote_update"}`)))
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"vote_update","results":{"B":3}}`)))

		snap := waitSnapshot(t, applied)

		assert.Equal(t, 3, snap.Count("B"))
		assertNoSnapshot(t, applied)
	})

	t.Run("Should reconnect once after the fixed delay when the channel drops", func(t provider.T) {
		ps := newPushServer()
		defer ps.srv.Close()

		applied := make(chan model.Results, 8)
		feed := New(ps.url(), func(snap model.Results) { applied <- snap },
			WithReconnectDelay(testDelay))
		go feed.Run()
		defer feed.Close()

		first := ps.accept(t)
		first.Close()

		second := ps.accept(t)
		assert.Equal(t, 2, ps.dialCount())

		assert.NoError(t, second.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"vote_update","results":{"A":5}}`)))
		snap := waitSnapshot(t, applied)
		assert.Equal(t, 5, snap.Count("A"))
	})

	t.Run("Should not reconnect after Close even with a reconnect pending", func(t provider.T) {
		ps := newPushServer()
		defer ps.srv.Close()

		feed := New(ps.url(), func(model.Results) {},
			WithReconnectDelay(300*time.Millisecond))
		go feed.Run()

		conn := ps.accept(t)
		conn.Close()

		// The reconnect timer is now pending. Close must cancel it.
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, feed.Close())

		time.Sleep(600 * time.Millisecond)
		assert.Equal(t, 1, ps.dialCount())
	})

	t.Run("Should tear down a connection established after Close", func(t provider.T) {
		ps := newPushServer()
		defer ps.srv.Close()

		dialStarted := make(chan struct{})
		releaseDial := make(chan struct{})
		dialer := &websocket.Dialer{
			NetDial: func(network, addr string) (net.Conn, error) {
				close(dialStarted)
				<-releaseDial
				return net.Dial(network, addr)
			},
		}

		feed := New(ps.url(), func(model.Results) {},
			WithDialer(dialer), WithReconnectDelay(testDelay))

		done := make(chan struct{})
		go func() {
			feed.Run()
			close(done)
		}()

		<-dialStarted
		assert.NoError(t, feed.Close())
		close(releaseDial)

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("feed kept running on a socket dialed across Close")
		}
	})

	t.Run("Should stop retrying dial failures after Close", func(t provider.T) {
		ps := newPushServer()
		ps.srv.Close() // nothing listens anymore

		feed := New(ps.url(), func(model.Results) {},
			WithReconnectDelay(testDelay))

		done := make(chan struct{})
		go func() {
			feed.Run()
			close(done)
		}()

		time.Sleep(120 * time.Millisecond)
		assert.NoError(t, feed.Close())

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("feed did not stop")
		}
	})
}

func TestUnitSuite(t *testing.T) {
	suite.RunSuite(t, new(FeedUnitSuite))
}
