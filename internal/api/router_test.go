package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/zahid0/audio-app/internal/auth"
	"github.com/zahid0/audio-app/internal/catalog"
	"github.com/zahid0/audio-app/internal/config"
	"github.com/zahid0/audio-app/internal/middleware"
	"github.com/zahid0/audio-app/internal/storage"
	"github.com/zahid0/audio-app/internal/storage/storagetest"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv(auth.SecretEnv, "router-test-secret-with-32-characters")
	os.Exit(m.Run())
}

// ---- fixtures ---------------------------------------------------------------

const testPassword = "correct horse"

var testHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

var audioBytes = []byte("ID3-fake-mpeg-audio-payload")

type testEnv struct {
	router  *gin.Engine
	fake    *storagetest.Fake
	tempDir string
}

func newTestConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Env: "prod"},
		Auth:    config.AuthConfig{Users: map[string]string{"alice": testHash}, TokenTTL: time.Hour},
		Logging: config.LoggingConfig{Format: "json"},
	}
}

func newTestEnv(t *testing.T, cfg *config.Config, foldersToShow ...string) *testEnv {
	t.Helper()
	fake := storagetest.NewFake()
	fake.AddFolder("f-lectures", "Lectures")
	fake.AddFolder("f-drafts", "Drafts")
	fake.AddFile("f-lectures", "week1.mp3", audioBytes)
	fake.AddFile("f-lectures", "week1.json", []byte(`[{"text":"Hello"},{"text":"world"}]`))
	fake.AddFile("f-lectures", "Week2.json", []byte(`[]`))
	fake.AddFile("f-drafts", "notes.txt", []byte("n"))

	tempDir := t.TempDir()
	cat := catalog.New(fake, catalog.Options{FoldersToShow: foldersToShow, TempDir: tempDir})
	router, bg := NewRouter(cfg, cat)
	t.Cleanup(bg.Shutdown)
	return &testEnv{router: router, fake: fake, tempDir: tempDir}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	w := e.do(loginRequest("alice", testPassword))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return body.AccessToken, c
		}
	}
	t.Fatal("login did not set the session cookie")
	return "", nil
}

func loginRequest(user, password string) *http.Request {
	form := url.Values{"username": {user}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func bearerGet(target, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func sessionGet(target string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	s, _ := body["detail"].(string)
	return s
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	return matches
}

// ---- login ------------------------------------------------------------------

func TestLogin(t *testing.T) {
	env := newTestEnv(t, newTestConfig())

	w := env.do(loginRequest("alice", testPassword))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"access_token":"`+mustToken(t, w)+`","token_type":"bearer"}`, w.Body.String())

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, "/", session.Path)
	assert.InDelta(t, time.Hour.Seconds(), float64(session.MaxAge), 5)

	claims, err := auth.ValidateJWT(session.Value, auth.AudienceSession)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func mustToken(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["access_token"]
}

func TestLogin_Rejected(t *testing.T) {
	env := newTestEnv(t, newTestConfig())

	tests := []struct {
		name   string
		req    *http.Request
		status int
		detail string
	}{
		{"wrong password", loginRequest("alice", "nope"), http.StatusUnauthorized, "Incorrect username or password"},
		{"unknown user", loginRequest("mallory", testPassword), http.StatusUnauthorized, "Incorrect username or password"},
		{"missing fields", httptest.NewRequest(http.MethodPost, "/api/token", nil), http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.req)
			assert.Equal(t, tt.status, w.Code)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, detail(t, w))
			}
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	env := newTestEnv(t, newTestConfig())

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/logout", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

// ---- bearer routes ----------------------------------------------------------

func TestBearerRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t, newTestConfig())
	_, cookie := env.login(t)

	for _, target := range []string{"/api/collections", "/api/audios/f-lectures", "/api/search?query=w", "/api/transcripts/week1"} {
		t.Run(target, func(t *testing.T) {
			// The session cookie alone does not authorize the JSON API.
			w := env.do(sessionGet(target, cookie))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			assert.Equal(t, "Could not validate credentials", detail(t, w))
		})
	}
}

func TestCollections(t *testing.T) {
	env := newTestEnv(t, newTestConfig(), "Lectures")
	token, _ := env.login(t)

	w := env.do(bearerGet("/api/collections", token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"f-lectures","name":"Lectures"}]`, w.Body.String())

	// Every call refreshes the snapshot.
	env.do(bearerGet("/api/collections", token))
	assert.Equal(t, 2, env.fake.Calls("list_folders"))
}

func TestCollections_BackendDown(t *testing.T) {
	env := newTestEnv(t, newTestConfig())
	token, _ := env.login(t)
	env.fake.Errs["list_folders"] = storage.NewError("fake", "list_folders", "", storage.ErrBackendUnavailable, errors.New("dial tcp: refused"))

	w := env.do(bearerGet("/api/collections", token))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Storage backend unavailable", detail(t, w))
	assert.NotContains(t, w.Body.String(), "refused")
}

func TestAudios(t *testing.T) {
	env := newTestEnv(t, newTestConfig(), "Lectures")
	token, _ := env.login(t)

	w := env.do(bearerGet("/api/audios/f-lectures", token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[
		{"id":"f-lectures/week1.mp3","title":"week1.mp3","url":"/audios/f-lectures/week1.mp3"},
		{"id":"f-lectures/week1.json","title":"week1.json","url":"/audios/f-lectures/week1.json"},
		{"id":"f-lectures/Week2.json","title":"Week2.json","url":"/audios/f-lectures/Week2.json"}
	]`, w.Body.String())

	for _, folder := range []string{"f-drafts", "f-missing"} {
		w := env.do(bearerGet("/api/audios/"+folder, token))
		assert.Equal(t, http.StatusNotFound, w.Code, folder)
		assert.Equal(t, "Folder not found", detail(t, w), folder)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, newTestConfig())
	token, _ := env.login(t)

	w := env.do(bearerGet("/api/search?query=WEEK", token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["week1","Week2"]`, w.Body.String())

	w = env.do(bearerGet("/api/search?query=nothing", token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = env.do(bearerGet("/api/search", token))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestTranscripts(t *testing.T) {
	env := newTestEnv(t, newTestConfig())
	token, _ := env.login(t)

	w := env.do(bearerGet("/api/transcripts/week1", token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"text":"Hello\nworld"}`, w.Body.String())

	w = env.do(bearerGet("/api/transcripts/week9", token))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found", detail(t, w))
}

// ---- media routes -----------------------------------------------------------

func TestPlay(t *testing.T) {
	env := newTestEnv(t, newTestConfig())
	_, cookie := env.login(t)

	w := env.do(sessionGet("/audios/f-lectures/week1.mp3", cookie))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, audioBytes, w.Body.Bytes())
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Empty(t, tempFiles(t, env.tempDir), "scoped download left behind")
}

func TestPlay_Range(t *testing.T) {
	env := newTestEnv(t, newTestConfig())
	_, cookie := env.login(t)

	req := sessionGet("/audios/f-lectures/week1.mp3", cookie)
	req.Header.Set("Range", "bytes=0-3")
	w := env.do(req)
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, audioBytes[:4], w.Body.Bytes())
	assert.Empty(t, tempFiles(t, env.tempDir))
}

func TestPlay_Errors(t *testing.T) {
	env := newTestEnv(t, newTestConfig())
	_, cookie := env.login(t)

	w := env.do(sessionGet("/audios/f-lectures/week1.mp3", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthenticated", detail(t, w))

	w = env.do(sessionGet("/audios/f-lectures/missing.mp3", cookie))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found", detail(t, w))

	env.fake.FailCopyAfter = 3
	w = env.do(sessionGet("/audios/f-lectures/week1.mp3", cookie))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, tempFiles(t, env.tempDir), "partial download left behind")
}

func TestStream(t *testing.T) {
	env := newTestEnv(t, newTestConfig())
	_, cookie := env.login(t)
	env.fake.ChunkSize = 5

	w := env.do(sessionGet("/api/stream/f-lectures/week1.mp3", cookie))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, audioBytes, w.Body.Bytes())
	assert.Empty(t, w.Result().Trailer.Get("X-Stream-Error"))

	w = env.do(sessionGet("/api/stream/f-lectures/missing.mp3", cookie))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(sessionGet("/api/stream/f-lectures/week1.mp3", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ---- cross-cutting ----------------------------------------------------------

func TestCacheControl(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"prod", "public, max-age=3600"},
		{"dev", ""},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.Server.Env = tt.env
			env := newTestEnv(t, cfg)
			token, _ := env.login(t)

			w := env.do(bearerGet("/api/collections", token))
			assert.Equal(t, tt.want, w.Header().Get("Cache-Control"))
		})
	}
}

func TestLoginRateLimited(t *testing.T) {
	cfg := newTestConfig()
	cfg.Security.RateLimiting = config.RateLimitingConfig{Enabled: true, RequestsPerMinute: 100, Burst: 100}
	env := newTestEnv(t, cfg)

	var last int
	for range 10 {
		last = env.do(loginRequest("alice", "wrong")).Code
	}
	// The login budget is fixed and stricter than the general one.
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, newTestConfig())

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"backend":"fake"`)

	env.fake.Errs["list_folders"] = errors.New("down")
	w = env.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	delete(env.fake.Errs, "list_folders")
	w = env.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)
}

func TestStaticPlayer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>player</html>"), 0o644))
	cfg := newTestConfig()
	cfg.Server.StaticDir = dir
	env := newTestEnv(t, cfg)

	w := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "player")

	w = env.do(httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
