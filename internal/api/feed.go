package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"stockanalysis/internal/metrics"
	"stockanalysis/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SummaryFunc computes the statistics of a symbol's 10^k window.
type SummaryFunc func(ctx context.Context, symbol string, k int) (model.StatsResponse, int, error)

// Feed pushes statistics to WebSocket subscribers when their symbol receives
// new observations. Appends are coalesced: each (symbol, k) pair is
// recomputed at most once per interval however many appends arrived.
type Feed struct {
	compute  SummaryFunc
	interval time.Duration
	metrics  *metrics.Metrics

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	dirty   map[string]struct{}
}

// NewFeed creates a Feed. Call Run to start delivering updates.
func NewFeed(compute SummaryFunc, interval time.Duration, m *metrics.Metrics) *Feed {
	if interval <= 0 {
		interval = time.Second
	}
	return &Feed{
		compute:  compute,
		interval: interval,
		metrics:  m,
		clients:  make(map[*feedClient]struct{}),
		dirty:    make(map[string]struct{}),
	}
}

// Notify marks symbol as changed.
func (f *Feed) Notify(symbol string) {
	f.mu.Lock()
	f.dirty[symbol] = struct{}{}
	f.mu.Unlock()
}

// Run flushes pending updates every interval until ctx is cancelled, then
// disconnects all clients. When source is non-nil its append announcements
// feed Notify, which lets several instances share one store.
func (f *Feed) Run(ctx context.Context, source model.AppendNotifier) {
	if source != nil {
		go f.follow(ctx, source)
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

func (f *Feed) follow(ctx context.Context, source model.AppendNotifier) {
	appends := make(chan string, 256)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case symbol := <-appends:
				f.Notify(symbol)
			}
		}
	}()

	for {
		err := source.SubscribeAppends(ctx, appends)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("append subscription ended, retrying", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

type subscription struct {
	symbol string
	k      int
}

// flush recomputes every dirty (symbol, k) pair that has subscribers.
func (f *Feed) flush(ctx context.Context) {
	f.mu.Lock()
	if len(f.dirty) == 0 {
		f.mu.Unlock()
		return
	}
	targets := make(map[subscription][]*feedClient)
	for c := range f.clients {
		if _, ok := f.dirty[c.sub.symbol]; ok {
			targets[c.sub] = append(targets[c.sub], c)
		}
	}
	f.dirty = make(map[string]struct{})
	f.mu.Unlock()

	for sub, clients := range targets {
		msg, err := f.update(ctx, sub)
		if err != nil {
			if !errors.Is(err, ErrNoData) {
				slog.Warn("feed update failed", "symbol", sub.symbol, "k", sub.k, "error", err)
			}
			continue
		}
		for _, c := range clients {
			f.deliver(c, msg)
		}
	}
}

func (f *Feed) update(ctx context.Context, sub subscription) ([]byte, error) {
	resp, n, err := f.compute(ctx, sub.symbol, sub.k)
	if err != nil {
		return nil, err
	}
	return json.Marshal(model.StatsUpdate{
		Symbol: sub.symbol,
		K:      sub.k,
		Count:  n,
		Stats:  resp,
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// deliver queues msg without blocking; a full queue drops the update since
// the next one supersedes it.
func (f *Feed) deliver(c *feedClient, msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
		f.metrics.FeedPushes.Inc()
	default:
	}
}

// ServeWS handles GET /ws/stats?symbol=S&k=K.
func (f *Feed) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if err := validateSymbol(symbol); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	k, err := parseK(q.Get("k"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		conn: conn,
		send: make(chan []byte, 16),
		feed: f,
		sub:  subscription{symbol: symbol, k: k},
	}
	f.register(c)

	go c.writePump()
	go c.readPump()

	// Current state first so the client does not wait for the next append.
	if msg, err := f.update(r.Context(), c.sub); err == nil {
		f.deliver(c, msg)
	}
}

func (f *Feed) register(c *feedClient) {
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	f.metrics.FeedClients.Inc()
	slog.Info("ws client subscribed", "symbol", c.sub.symbol, "k", c.sub.k)
}

func (f *Feed) unregister(c *feedClient) {
	f.mu.Lock()
	_, ok := f.clients[c]
	if ok {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
	if ok {
		f.metrics.FeedClients.Dec()
	}
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	clients := make([]*feedClient, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.Unlock()
	for _, c := range clients {
		f.unregister(c)
	}
}

// Clients returns the number of connected subscribers.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
