package main

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // test backend mirrors S3 ETags
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ScribeLabsAI/ScribeMi/internal/config"
	"github.com/ScribeLabsAI/ScribeMi/internal/mi"
)

const (
	testPassword       = "hunter2"
	testUserID         = "eu-west-2:7f3c9b1e-0000-4000-8000-000000000001"
	testUserPoolID     = "eu-west-2_AbCdEf123"
	testIdentityPoolID = "eu-west-2:0b7c5e52-3f0d-4d55-9a2c-1b6f4b8e2d11"
)

// fakeProvider accepts testPassword for any username and issues a fixed
// refresh token.
type fakeProvider struct {
	mu       sync.Mutex
	logins   int
	refreshes int
}

func (p *fakeProvider) GetTokens(_ context.Context, login mi.Login) (mi.Tokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if login.IsRefresh() {
		if login.RefreshToken != "refresh-1" {
			return mi.Tokens{}, errors.New("NotAuthorizedException: invalid refresh token")
		}

		p.refreshes++

		return mi.Tokens{IDToken: fmt.Sprintf("id-token-refreshed-%d", p.refreshes)}, nil
	}

	if login.Password != testPassword {
		return mi.Tokens{}, errors.New("NotAuthorizedException: incorrect username or password")
	}

	p.logins++

	return mi.Tokens{IDToken: "id-token-1", AccessToken: "access-token", RefreshToken: "refresh-1"}, nil
}

func (p *fakeProvider) GetFederatedID(_ context.Context, _ string) (string, error) {
	return testUserID, nil
}

func (p *fakeProvider) GetFederatedCredentials(_ context.Context, _, _ string) (mi.FederatedCredentials, error) {
	return mi.FederatedCredentials{
		AccessKeyID:  "AKIDTESTKEY",
		SecretKey:    "secret-key",
		SessionToken: "session-token",
		Expiration:   time.Now().Add(time.Hour),
	}, nil
}

// useFakeProvider swaps the Cognito provider for a fake until the test ends.
func useFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{}
	old := newCredentialProvider

	newCredentialProvider = func(context.Context, *config.Config, *http.Client, *slog.Logger) (mi.CredentialProvider, error) {
		return p, nil
	}

	t.Cleanup(func() { newCredentialProvider = old })

	return p
}

// isolateDirs points every config and data path into a temp directory.
func isolateDirs(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir+"/config")
	t.Setenv("XDG_DATA_HOME", dir+"/data")
	t.Setenv(config.EnvConfig, "")

	return dir
}

func setConnectionEnv(t *testing.T, apiURL string) {
	t.Helper()

	t.Setenv(config.EnvAPIURL, apiURL)
	t.Setenv(config.EnvRegion, "eu-west-2")
	t.Setenv(config.EnvClientID, "test-client")
	t.Setenv(config.EnvUserPoolID, testUserPoolID)
	t.Setenv(config.EnvIdentityPoolID, testIdentityPoolID)
}

// executeCLI runs the root command with args and returns its stdout.
func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	saveGlobals(t)

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--quiet"}, args...))

	err := cmd.Execute()

	return out.String(), err
}

// fakeBackend is a minimal MI API with presigned storage endpoints.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	tasks    map[string]*mi.Task
	order    []string
	checks   map[string]string
	models   map[string][]byte
	nextID   int
	requests atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		t:      t,
		tasks:  make(map[string]*mi.Task),
		checks: make(map[string]string),
		models: make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", b.signed(b.handleListTasks))
	mux.HandleFunc("POST /tasks", b.signed(b.handleSubmit))
	mux.HandleFunc("GET /tasks/{id}", b.signed(b.handleGetTask))
	mux.HandleFunc("DELETE /tasks/{id}", b.signed(b.handleDeleteTask))
	mux.HandleFunc("PUT /upload/{id}", b.handleUpload)
	mux.HandleFunc("GET /model/{id}", b.handleModel)

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)

	return b
}

// signed rejects API requests without a SigV4 Authorization header.
func (b *fakeBackend) signed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 ") {
			http.Error(w, `{"message":"Missing Authentication Token"}`, http.StatusForbidden)
			return
		}

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) handleListTasks(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	company := r.URL.Query().Get("company")
	tasks := []mi.Task{}

	for _, id := range b.order {
		if task, ok := b.tasks[id]; ok && (company == "" || task.CompanyName == company) {
			tasks = append(tasks, *task)
		}
	}

	writeJSON(w, map[string]any{"tasks": tasks})
}

func (b *fakeBackend) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var params mi.SubmitParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := fmt.Sprintf("job-%d", b.nextID)

	b.tasks[id] = &mi.Task{
		JobID:          id,
		Client:         "client-1",
		Status:         mi.StatusPending,
		Submitted:      time.Now().UnixMilli(),
		CompanyName:    params.CompanyName,
		ClientFilename: params.Filename,
	}
	b.order = append(b.order, id)
	b.checks[id] = params.MD5Checksum

	writeJSON(w, map[string]string{
		"url":   b.srv.URL + "/upload/" + id + "?X-Amz-Signature=deadbeef",
		"jobid": id,
	})
}

func (b *fakeBackend) handleGetTask(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	task, ok := b.tasks[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"message":"Not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, task)
}

func (b *fakeBackend) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := r.PathValue("id")
	if _, ok := b.tasks[id]; !ok {
		http.Error(w, `{"message":"Not found"}`, http.StatusNotFound)
		return
	}

	delete(b.tasks, id)
	writeJSON(w, map[string]string{"jobid": id})
}

func (b *fakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if r.Header.Get("Content-MD5") != b.checks[r.PathValue("id")] || b.checks[r.PathValue("id")] != mi.ContentMD5(body) {
		http.Error(w, "<Error><Code>BadDigest</Code></Error>", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (b *fakeBackend) handleModel(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	model, ok := b.models[r.PathValue("id")]
	if !ok {
		http.Error(w, "<Error><Code>AccessDenied</Code></Error>", http.StatusForbidden)
		return
	}

	sum := md5.Sum(model) //nolint:gosec // S3 ETag
	w.Header().Set("ETag", `"`+hex.EncodeToString(sum[:])+`"`)
	_, _ = w.Write(model)
}

// finish marks a task successful and publishes its model.
func (b *fakeBackend) finish(id string, model []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	task := b.tasks[id]
	require.NotNil(b.t, task, "unknown task %s", id)

	task.Status = mi.StatusSuccess
	task.ModelURL = b.srv.URL + "/model/" + id + "?X-Amz-Signature=cafe"
	b.models[id] = model
}
