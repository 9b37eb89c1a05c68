package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"threadboard/internal/cache"
	"threadboard/internal/database"
	"threadboard/internal/models"
	"threadboard/internal/threads"
	"threadboard/internal/utils"
	"threadboard/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store  *database.MemoryStore
	router http.Handler
	author *models.User
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store := database.NewMemoryStore()
	pages, err := cache.NewPageCache(actor.NewActorSystem(), 64, time.Minute)
	require.NoError(t, err)
	t.Cleanup(pages.Stop)

	metrics := utils.NewMetricsCollector()
	repo := threads.NewRepository(store, pages, metrics)
	server := NewServer(repo, pages, metrics)

	author := &models.User{ID: uuid.New(), Username: "ada", Name: "Ada", Image: "ada.png"}
	require.NoError(t, store.SaveUser(context.Background(), author))

	return &testEnv{store: store, router: server.Routes(nil), author: author}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodePosts(t *testing.T, rec *httptest.ResponseRecorder) PostsResponse {
	t.Helper()
	var resp PostsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateAndListThreads(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/threads", `{"text":"**hello**","author":"`+env.author.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/threads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	resp := decodePosts(t, rec)
	require.Len(t, resp.Posts, 1)
	assert.False(t, resp.IsNext)
	assert.Equal(t, "**hello**", resp.Posts[0].Text)
	assert.Contains(t, string(resp.Posts[0].HTML), "<strong>hello</strong>")
	require.NotNil(t, resp.Posts[0].Author)
	assert.Equal(t, "ada", resp.Posts[0].Author.Username)
}

func TestListIsCachedUntilRevalidated(t *testing.T) {
	env := setupTestServer(t)
	create := `{"text":"one","author":"` + env.author.ID.String() + `"}`

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/threads", create).Code)

	first := env.do(t, http.MethodGet, "/threads?page=1", "")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := env.do(t, http.MethodGet, "/threads?page=1", "")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/threads", create).Code)

	third := env.do(t, http.MethodGet, "/threads?page=1", "")
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Len(t, decodePosts(t, third).Posts, 2)
}

// pausingStore holds the first FindRootThreads call after it has read the
// store, until release is closed.
type pausingStore struct {
	*database.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *pausingStore) FindRootThreads(ctx context.Context, skip, limit int64) ([]*models.Thread, error) {
	roots, err := p.MemoryStore.FindRootThreads(ctx, skip, limit)
	p.once.Do(func() {
		close(p.entered)
		<-p.release
	})
	return roots, err
}

func TestListBuiltDuringCreateIsNotCached(t *testing.T) {
	store := &pausingStore{
		MemoryStore: database.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	pages, err := cache.NewPageCache(actor.NewActorSystem(), 64, time.Minute)
	require.NoError(t, err)
	t.Cleanup(pages.Stop)

	metrics := utils.NewMetricsCollector()
	server := NewServer(threads.NewRepository(store, pages, metrics), pages, metrics)
	author := &models.User{ID: uuid.New(), Username: "ada", Name: "Ada"}
	require.NoError(t, store.SaveUser(context.Background(), author))
	env := &testEnv{store: store.MemoryStore, router: server.Routes(nil), author: author}

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/threads", nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		done <- rec
	}()

	<-store.entered
	rec := env.do(t, http.MethodPost, "/threads", `{"text":"late","author":"`+author.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	close(store.release)

	stale := <-done
	require.Equal(t, http.StatusOK, stale.Code)
	assert.Empty(t, decodePosts(t, stale).Posts)

	rec = env.do(t, http.MethodGet, "/threads", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Len(t, decodePosts(t, rec).Posts, 1)
}

func TestTrailingSlashListSharesCacheEntry(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/threads/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	rec = env.do(t, http.MethodGet, "/threads", "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	create := `{"text":"one","author":"` + env.author.ID.String() + `"}`
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/threads", create).Code)

	rec = env.do(t, http.MethodGet, "/threads/", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Len(t, decodePosts(t, rec).Posts, 1)
}

func TestCreateThreadValidation(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"text":`, http.StatusBadRequest},
		{"missing text", `{"author":"` + env.author.ID.String() + `"}`, http.StatusBadRequest},
		{"bad author", `{"text":"x","author":"nope"}`, http.StatusBadRequest},
		{"bad community", `{"text":"x","author":"` + env.author.ID.String() + `","communityId":"nope"}`, http.StatusBadRequest},
		{"unknown author", `{"text":"x","author":"` + uuid.NewString() + `"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/threads", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestFetchThreadWithComments(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	root := &models.Thread{Text: "root", AuthorID: env.author.ID}
	require.NoError(t, env.store.InsertThread(ctx, root))
	path := "/threads/" + root.ID.String()

	rec := env.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, path+"/comments", `{"text":"reply","userId":"`+env.author.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"), "commenting revalidates the thread page")

	var resp ThreadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, root.ID, resp.ID)
	require.Len(t, resp.Children, 1)
	assert.Equal(t, "reply", resp.Children[0].Text)
	require.NotNil(t, resp.Children[0].ParentID)
	assert.Equal(t, root.ID, *resp.Children[0].ParentID)
	require.NotNil(t, resp.Children[0].Author)
	assert.Equal(t, "Ada", resp.Children[0].Author.Name)
	assert.Empty(t, resp.Children[0].Author.Username, "reply authors are summarised")
}

func TestFetchThreadErrors(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/threads/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/threads/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddCommentToMissingThread(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/threads/"+uuid.NewString()+"/comments",
		`{"text":"hi","userId":"`+env.author.ID.String()+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error adding comment: Thread not found")
	assert.Equal(t, 0, env.store.ThreadCount())
}

func TestFetchPostsRejectsBadQuery(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/threads?page=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/threads?size=1.5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	env.do(t, http.MethodGet, "/threads", "")
	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "metrics")
	assert.Contains(t, body, "pageCache")
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/threads", nil)
	req.Header.Set("Origin", "https://board.example")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://board.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLiveDisabledWithoutHub(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/threads/live", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLiveStreamsCreatedThreads(t *testing.T) {
	store := database.NewMemoryStore()
	pages, err := cache.NewPageCache(actor.NewActorSystem(), 8, time.Minute)
	require.NoError(t, err)
	t.Cleanup(pages.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub()
	go hub.Run(ctx)

	metrics := utils.NewMetricsCollector()
	repo := threads.NewRepository(store, pages, metrics)
	repo.SetNotifier(hub)
	server := NewServer(repo, pages, metrics)
	server.Hub = hub

	ts := httptest.NewServer(server.Routes([]string{"https://board.example"}))
	t.Cleanup(ts.Close)

	author := &models.User{ID: uuid.New(), Username: "ada"}
	require.NoError(t, store.SaveUser(ctx, author))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/threads/live"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := ws.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, _, err = ws.DefaultDialer.Dial(wsURL+"?thread=nope", nil)
	require.Error(t, err)

	conn, _, err := ws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	body := strings.NewReader(`{"text":"live","author":"` + author.ID.String() + `"}`)
	res, err := http.Post(ts.URL+"/threads", "application/json", body)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event models.ThreadEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.ThreadCreated, event.Type)
	assert.Equal(t, author.ID, event.AuthorID)
}
