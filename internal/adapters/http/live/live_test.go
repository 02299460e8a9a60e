package live_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/typerace/internal/adapters/http/live"
	"github.com/okian/typerace/internal/domain/model"
	"github.com/okian/typerace/internal/domain/session"
	"github.com/okian/typerace/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSessions struct {
	mu       sync.Mutex
	live     map[string]bool
	progress map[string][]int
}

func newFakeSessions(ids ...string) *fakeSessions {
	f := &fakeSessions{live: map[string]bool{}, progress: map[string][]int{}}
	for _, id := range ids {
		f.live[id] = true
	}
	return f
}

func (f *fakeSessions) Session(_ context.Context, id string) (model.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[id] {
		return model.GameSession{}, session.ErrNotFound
	}
	return model.GameSession{ID: id}, nil
}

func (f *fakeSessions) RecordHeartbeat(_ context.Context, id string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[id] {
		return session.ErrNotFound
	}
	f.progress[id] = append(f.progress[id], progress)
	return nil
}

func (f *fakeSessions) end(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, id)
}

func (f *fakeSessions) seen(id string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.progress[id]...)
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/game/live?sessionId=" + sessionID
	return websocket.DefaultDialer.Dial(url, nil)
}

func readReply(conn *websocket.Conn) (types.LiveReply, error) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var r types.LiveReply
	err := conn.ReadJSON(&r)
	return r, err
}

func TestLiveHandler(t *testing.T) {
	Convey("Given a live endpoint with one active session", t, func() {
		sessions := newFakeSessions("s-1")
		srv := httptest.NewServer(live.NewHandler(sessions))
		defer srv.Close()

		Convey("When no session id is given", func() {
			resp, err := http.Get(srv.URL + "/api/game/live")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the request is rejected before upgrading", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the session does not exist", func() {
			_, resp, err := dial(t, srv, "nope")

			Convey("Then the handshake fails with 404", func() {
				So(err, ShouldNotBeNil)
				So(resp, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the client reports progress", func() {
			conn, _, err := dial(t, srv, "s-1")
			So(err, ShouldBeNil)
			defer conn.Close()

			So(conn.WriteJSON(types.LiveProgress{Progress: 5}), ShouldBeNil)
			first, err := readReply(conn)
			So(err, ShouldBeNil)
			So(conn.WriteJSON(types.LiveProgress{Progress: 9}), ShouldBeNil)
			second, err := readReply(conn)
			So(err, ShouldBeNil)

			Convey("Then every frame is acknowledged and recorded as a heartbeat", func() {
				So(first, ShouldResemble, types.LiveReply{Type: types.LiveAck, Progress: 5})
				So(second, ShouldResemble, types.LiveReply{Type: types.LiveAck, Progress: 9})
				So(sessions.seen("s-1"), ShouldResemble, []int{5, 9})
			})

			Convey("And a malformed frame gets an error but keeps the channel", func() {
				So(conn.WriteMessage(websocket.TextMessage, []byte("not json")), ShouldBeNil)
				bad, err := readReply(conn)
				So(err, ShouldBeNil)
				So(bad.Type, ShouldEqual, types.LiveError)
				So(bad.Code, ShouldEqual, "bad_request")

				So(conn.WriteJSON(types.LiveProgress{Progress: 10}), ShouldBeNil)
				ok, err := readReply(conn)
				So(err, ShouldBeNil)
				So(ok.Type, ShouldEqual, types.LiveAck)
			})

			Convey("And once the session ends the server says so and closes", func() {
				sessions.end("s-1")
				So(conn.WriteJSON(types.LiveProgress{Progress: 11}), ShouldBeNil)
				reply, err := readReply(conn)
				So(err, ShouldBeNil)
				So(reply.Type, ShouldEqual, types.LiveError)
				So(reply.Code, ShouldEqual, "not_found")

				_, err = readReply(conn)
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLiveHandler_AllowedOrigins(t *testing.T) {
	sessions := newFakeSessions("s-1")
	srv := httptest.NewServer(live.NewHandler(sessions, live.WithAllowedOrigins([]string{"https://play.example"})))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?sessionId=s-1"

	header := http.Header{"Origin": {"https://evil.example"}}
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected handshake from a foreign origin to fail")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}

	header = http.Header{"Origin": {"https://play.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	_ = conn.Close()
}
