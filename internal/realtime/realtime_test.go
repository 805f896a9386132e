package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/middleware"
	"github.com/pitchside/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fakeClient(h *Hub) *Client {
	return &Client{ID: uuid.NewString(), UserID: uuid.New(), hub: h, send: make(chan Event, 8)}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	return Event{}
}

func TestHubLocalPublish(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	a, b := fakeClient(h), fakeClient(h)
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.ClientCount())

	h.PublishEvent(context.Background(), "submission.pending", map[string]string{"id": "s1"})
	for _, c := range []*Client{a, b} {
		ev := receive(t, c)
		assert.Equal(t, "submission.pending", ev.Type)
		assert.JSONEq(t, `{"id":"s1"}`, string(ev.Data))
	}

	h.Unregister(a)
	assert.Equal(t, 1, h.ClientCount())
	_, open := <-a.send
	assert.False(t, open)
}

func TestHubRelaysThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ps := NewRedisPubSub(rdb, zap.NewNop())

	// two hubs sharing Redis stand in for two instances
	local := NewHub(zap.NewNop(), ps, ps)
	remote := NewHub(zap.NewNop(), ps, ps)
	t.Cleanup(local.Close)
	t.Cleanup(remote.Close)
	lc, rc := fakeClient(local), fakeClient(remote)
	local.Register(lc)
	remote.Register(rc)

	local.PublishEvent(context.Background(), "submission.approved", map[string]string{"id": "s2"})

	for _, c := range []*Client{lc, rc} {
		ev := receive(t, c)
		assert.Equal(t, "submission.approved", ev.Type)
		assert.JSONEq(t, `{"id":"s2"}`, string(ev.Data))
	}
	select {
	case ev := <-lc.send:
		t.Fatalf("duplicate delivery: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServeWs(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	mod := &models.User{ID: uuid.New(), PlatformRole: models.PlatformRoleModerator}
	r := gin.New()
	r.GET("/admin/ws", func(c *gin.Context) {
		middleware.WithAccess(c, middleware.NewAccessContext(mod, nil, ""))
		c.Next()
	}, middleware.RequireModerator(), ServeWs(h, nil, zap.NewNop()))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.PublishEvent(context.Background(), "submission.review", map[string]string{"id": "s3"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "submission.review", ev.Event)
	assert.JSONEq(t, `{"id":"s3"}`, string(ev.Data))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUpgraderOrigins(t *testing.T) {
	u := newUpgrader([]string{"https://app.example/"})
	req := httptest.NewRequest("GET", "/admin/ws", nil)
	req.Header.Set("Origin", "https://app.example")
	assert.True(t, u.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, u.CheckOrigin(req))
}
