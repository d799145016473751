package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockanalysis/internal/model"

	"github.com/gorilla/websocket"
)

func startFeed(t *testing.T, e *testEnv, withSource bool) (*Feed, *httptest.Server) {
	t.Helper()
	feed := NewFeed(e.server.Summarise, 10*time.Millisecond, e.metrics)

	ctx, cancel := context.WithCancel(context.Background())
	var source model.AppendNotifier
	if withSource {
		source = e.store
	} else {
		e.server.notify = feed.Notify
	}
	done := make(chan struct{})
	go func() {
		feed.Run(ctx, source)
		close(done)
	}()

	ts := httptest.NewServer(NewRouter(RouterConfig{Server: e.server, Feed: feed}))
	t.Cleanup(func() {
		cancel()
		<-done
		ts.Close()
	})
	return feed, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/stats?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) model.StatsUpdate {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var u model.StatsUpdate
	if err := json.Unmarshal(msg, &u); err != nil {
		t.Fatalf("decode update %q: %v", msg, err)
	}
	return u
}

// readUntil reads updates until one satisfies ok. An initial snapshot can
// race with the first flush, so duplicates are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, ok func(model.StatsUpdate) bool) model.StatsUpdate {
	t.Helper()
	for i := 0; i < 10; i++ {
		if u := readUpdate(t, conn); ok(u) {
			return u
		}
	}
	t.Fatal("expected update never arrived")
	return model.StatsUpdate{}
}

func waitClients(t *testing.T, feed *Feed, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for feed.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", feed.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeed_InitialSnapshot(t *testing.T) {
	e := newTestEnv(t)
	e.addBatch(t, "AAPL", []float64{1, 2, 3})
	_, ts := startFeed(t, e, false)

	conn := dial(t, ts, "symbol=AAPL&k=1")
	u := readUpdate(t, conn)
	if u.Symbol != "AAPL" || u.K != 1 || u.Count != 3 {
		t.Errorf("unexpected update header %+v", u)
	}
	if u.Stats.Last != 3 || u.Stats.Avg != 2 {
		t.Errorf("stats = %+v, want last=3 avg=2", u.Stats)
	}
}

func TestFeed_PushesAfterAppend(t *testing.T) {
	e := newTestEnv(t)
	feed, ts := startFeed(t, e, false)

	conn := dial(t, ts, "symbol=MSFT&k=2")
	waitClients(t, feed, 1)

	e.addBatch(t, "MSFT", []float64{10, 20})
	u := readUpdate(t, conn)
	if u.Stats.Last != 20 || u.Count != 2 {
		t.Errorf("update = %+v, want last=20 count=2", u)
	}

	e.add(t, "MSFT", 30)
	u = readUntil(t, conn, func(u model.StatsUpdate) bool { return u.Count == 3 })
	if u.Stats.Last != 30 || u.Stats.Max != 30 || u.Count != 3 {
		t.Errorf("update = %+v, want last=30 count=3", u)
	}
}

func TestFeed_FollowsStoreAnnouncements(t *testing.T) {
	e := newTestEnv(t)
	feed, ts := startFeed(t, e, true)

	conn := dial(t, ts, "symbol=GOOGL&k=1")
	waitClients(t, feed, 1)

	deadline := time.Now().Add(2 * time.Second)
	for e.redis.PubSubNumPat() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("feed never subscribed to append announcements")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e.add(t, "GOOGL", 2500)
	u := readUpdate(t, conn)
	if u.Symbol != "GOOGL" || u.Stats.Last != 2500 {
		t.Errorf("update = %+v, want GOOGL last=2500", u)
	}
}

func TestFeed_RejectsInvalidSubscription(t *testing.T) {
	e := newTestEnv(t)
	_, ts := startFeed(t, e, false)

	for _, q := range []string{"symbol=&k=1", "symbol=A&k=9", "symbol=A&k=x"} {
		resp, err := http.Get(ts.URL + "/ws/stats?" + q)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestFeed_DisconnectUnregisters(t *testing.T) {
	e := newTestEnv(t)
	feed, ts := startFeed(t, e, false)

	conn := dial(t, ts, "symbol=A&k=1")
	waitClients(t, feed, 1)
	conn.Close()
	waitClients(t, feed, 0)
}
