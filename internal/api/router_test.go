package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/photo-feed/internal/api/handler"
	"github.com/d60-Lab/photo-feed/internal/auth"
	"github.com/d60-Lab/photo-feed/internal/blob"
	"github.com/d60-Lab/photo-feed/internal/cache"
	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/internal/service"
)

type apiEnv struct {
	router   *gin.Engine
	resolver *auth.JWTResolver
}

func newAPIEnv(t *testing.T, opts Options) *apiEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := blob.NewLocalStore(t.TempDir(), "http://localhost/blobs")
	require.NoError(t, err)

	users := repository.NewUserRepository(db)
	follows := repository.NewFollowRepository(db)
	fans := repository.NewFanRepository(db)
	posts := repository.NewPostRepository(db)
	feed := repository.NewFeedRepository(db)
	likes := repository.NewLikeRepository(db)
	comments := repository.NewCommentRepository(db)

	stats := cache.NewStatsCache(rdb, time.Minute, service.StatsLoader(follows, fans, posts))
	engine := service.NewFanoutEngine(fans, feed, posts, 100, 2)
	notify := service.NewNotificationService(repository.NewNotificationRepository(db), users, service.NotifyPolicy{})

	h := handler.New(handler.Services{
		Users:     service.NewUserService(users, follows, stats, store),
		Relations: service.NewRelationshipService(follows, fans, users, engine, notify, stats, nil),
		Posts: service.NewPostService(service.PostStores{
			Posts:    posts,
			Users:    users,
			Feed:     feed,
			Outbox:   repository.NewOutboxRepository(db),
			Likes:    likes,
			Comments: comments,
			Hashtags: repository.NewHashtagRepository(db),
		}, store, engine, notify, stats, true),
		Likes:         service.NewLikeService(likes, posts, users, follows, notify),
		Comments:      service.NewCommentService(comments, posts, users, notify, cache.NewCommentBroker(rdb)),
		Notifications: notify,
	})
	resolver := auth.NewJWTResolver("test-secret", "photo-feed", time.Hour)
	if opts.Mode == "" {
		opts.Mode = gin.TestMode
	}
	opts.BlobDir = store.Dir()
	return &apiEnv{router: NewRouter(h, resolver, opts), resolver: resolver}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *apiEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.resolver.Issue(userID)
	require.NoError(t, err)
	return tok
}

func (e *apiEnv) do(t *testing.T, method, path, userID string, body any) (int, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	return e.serve(t, req)
}

func (e *apiEnv) serve(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (e *apiEnv) register(t *testing.T, id, username string) {
	t.Helper()
	code, env := e.do(t, http.MethodPost, "/api/v1/users", id, map[string]string{"username": username})
	require.Equal(t, http.StatusCreated, code, env.Message)
}

func (e *apiEnv) createPost(t *testing.T, userID, caption string) model.Post {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="images"; filename="a.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("\xff\xd8\xff\xe0fake-jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("caption", caption))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	code, env := e.serve(t, req)
	require.Equal(t, http.StatusCreated, code, env.Message)
	var p model.Post
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestHealthAndAuth(t *testing.T) {
	e := newAPIEnv(t, Options{})
	code, _ := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env := e.do(t, http.MethodGet, "/api/v1/feed", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, http.StatusUnauthorized, env.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	code, _ = e.serve(t, req)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/posts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	e := newAPIEnv(t, Options{})
	e.register(t, "u-alice", "alice")
	e.register(t, "u-bob", "bob")

	code, env := e.do(t, http.MethodPost, "/api/v1/users", "u-carol", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusConflict, code, env.Message)

	code, _ = e.do(t, http.MethodPost, "/api/v1/users/u-alice/follow", "u-bob", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPost, "/api/v1/users/u-bob/follow", "u-bob", nil)
	assert.Equal(t, http.StatusBadRequest, code, "self follow")

	p := e.createPost(t, "u-alice", "sunset #travel @bob")

	code, env = e.do(t, http.MethodGet, "/api/v1/feed", "u-bob", nil)
	require.Equal(t, http.StatusOK, code)
	var feed struct {
		Items []model.Post `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &feed))
	require.Len(t, feed.Items, 1)
	assert.Equal(t, p.ID, feed.Items[0].ID)

	code, env = e.do(t, http.MethodPost, "/api/v1/posts/"+p.ID+"/like", "u-bob", nil)
	require.Equal(t, http.StatusOK, code)
	var like service.LikeResult
	require.NoError(t, json.Unmarshal(env.Data, &like))
	assert.True(t, like.Liked)
	assert.EqualValues(t, 1, like.Likes)

	code, _ = e.do(t, http.MethodPost, "/api/v1/posts/"+p.ID+"/comments", "u-bob", map[string]string{"text": "wow"})
	require.Equal(t, http.StatusCreated, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/notifications/unread", "u-alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"unread":3}`, string(env.Data), "follow, like and comment")

	code, _ = e.do(t, http.MethodDelete, "/api/v1/posts/"+p.ID, "u-bob", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = e.do(t, http.MethodDelete, "/api/v1/posts/"+p.ID, "u-alice", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodGet, "/api/v1/posts/"+p.ID, "u-bob", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/notifications", "u-alice", nil)
	require.Equal(t, http.StatusOK, code)
	var list []service.NotificationView
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1, "post notifications retracted with the post")
	assert.Equal(t, model.NotifyFollow, list[0].Type)
}

func TestRateLimitOverHTTP(t *testing.T) {
	e := newAPIEnv(t, Options{RateLimit: 0.001, Burst: 1})
	code, _ := e.do(t, http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, env := e.do(t, http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)
}

func TestCommentStreamOverSSE(t *testing.T) {
	e := newAPIEnv(t, Options{})
	e.register(t, "u-alice", "alice")
	p := e.createPost(t, "u-alice", "")
	code, _ := e.do(t, http.MethodPost, "/api/v1/posts/"+p.ID+"/comments", "u-alice", map[string]string{"text": "first"})
	require.Equal(t, http.StatusCreated, code)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/posts/"+p.ID+"/comments/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		if sc.Text() == "" && len(lines) > 0 {
			break
		}
		lines = append(lines, sc.Text())
	}
	require.NotEmpty(t, lines)
	assert.Equal(t, "event:added", lines[0])
	assert.Contains(t, strings.Join(lines, "\n"), `"text":"first"`)
}
