package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/inkpress/inkpress/internal/analytics"
	"github.com/inkpress/inkpress/internal/auth"
	"github.com/inkpress/inkpress/internal/cache"
	"github.com/inkpress/inkpress/internal/middleware"
	"github.com/inkpress/inkpress/internal/model"
	"github.com/inkpress/inkpress/internal/service"
	"github.com/inkpress/inkpress/internal/session"
	"github.com/inkpress/inkpress/internal/store"
	"github.com/inkpress/inkpress/internal/testutil"
)

const testPassword = "correct-horse-battery"

// testEnv wraps a fully wired API server for integration-style tests.
type testEnv struct {
	db      *sql.DB
	queries *store.Queries
	server  *httptest.Server
	client  *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)

	logger := testutil.TestLoggerSilent()
	sessions := session.New(db, true)

	h := NewHandler(Deps{
		DB:        db,
		Sessions:  sessions,
		Analytics: analytics.NewService(db, logger),
		Settings:  service.NewSettingsService(db, cache.NewSimpleMemoryCache(time.Minute), logger),
		Search:    service.NewSearchService(db),
		LoginProt: middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig()),
		Logger:    logger,
		BaseURL:   "http://example.com",
	})

	server := httptest.NewServer(h.Router(DefaultRouterConfig()))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}

	return &testEnv{
		db:      db,
		queries: store.New(db),
		server:  server,
		client:  &http.Client{Jar: jar},
	}
}

func (e *testEnv) createUser(t *testing.T, email, role string) model.User {
	t.Helper()

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user, err := e.queries.CreateUser(context.Background(), store.CreateUserParams{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Name:         "Test User",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func (e *testEnv) login(t *testing.T, email string) {
	t.Helper()

	status, _ := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	if status != http.StatusOK {
		t.Fatalf("login returned %d", status)
	}
}

// do performs a JSON request against the test server and returns the status
// code and raw response body.
func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return resp.StatusCode, respBody
}

// decodeData unmarshals the "data" field of a response envelope into out.
func decodeData(t *testing.T, body []byte, out any) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshaling envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("unmarshaling data: %v", err)
	}
}

// newAnonClient returns a view of the same server with a fresh cookie jar,
// so tests can mix authenticated and anonymous callers.
func newAnonClient(t *testing.T, env *testEnv) *testEnv {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testEnv{
		db:      env.db,
		queries: env.queries,
		server:  env.server,
		client:  &http.Client{Jar: jar},
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (e *testEnv) createPost(t *testing.T, title, status string) PostResponse {
	t.Helper()

	code, body := e.do(t, http.MethodPost, "/api/v1/posts", CreatePostRequest{
		Title:  title,
		Body:   "Some **markdown** body.",
		Status: status,
	})
	if code != http.StatusCreated {
		t.Fatalf("create post returned %d: %s", code, body)
	}
	var post PostResponse
	decodeData(t, body, &post)
	return post
}
