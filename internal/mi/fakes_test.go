package mi

import (
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
)

const (
	testRegion       = "eu-west-2"
	testUserID       = "eu-west-2:7f3c9b1e-0000-4000-8000-000000000001"
	testAccessKey    = "AKIDTESTKEY"
	testRefreshToken = "refresh-token-1"
)

// fakeProvider is an in-memory CredentialProvider that counts exchanges.
type fakeProvider struct {
	mu sync.Mutex

	idToken      string
	refreshToken string
	expiry       time.Time

	tokensErr  error
	refreshErr error
	credsErr   error

	// refreshGate, when set, blocks refresh exchanges until closed.
	refreshGate chan struct{}

	passwordLogins int
	refreshLogins  int
	federations    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		idToken:      "id-token-1",
		refreshToken: testRefreshToken,
		expiry:       time.Now().Add(time.Hour),
	}
}

func (p *fakeProvider) GetTokens(ctx context.Context, login Login) (Tokens, error) {
	if login.IsRefresh() && p.refreshGate != nil {
		<-p.refreshGate
	}

	if err := ctx.Err(); err != nil {
		return Tokens{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if login.IsRefresh() {
		p.refreshLogins++
		if p.refreshErr != nil {
			return Tokens{}, p.refreshErr
		}

		return Tokens{IDToken: fmt.Sprintf("id-token-refreshed-%d", p.refreshLogins)}, nil
	}

	p.passwordLogins++
	if p.tokensErr != nil {
		return Tokens{}, p.tokensErr
	}

	return Tokens{IDToken: p.idToken, AccessToken: "access-token", RefreshToken: p.refreshToken}, nil
}

func (p *fakeProvider) GetFederatedID(_ context.Context, idToken string) (string, error) {
	if idToken == "" {
		return "", errors.New("empty id token")
	}

	return testUserID, nil
}

func (p *fakeProvider) GetFederatedCredentials(_ context.Context, userID, _ string) (FederatedCredentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.federations++
	if p.credsErr != nil {
		return FederatedCredentials{}, p.credsErr
	}

	if userID != testUserID {
		return FederatedCredentials{}, fmt.Errorf("unknown user %q", userID)
	}

	return FederatedCredentials{
		AccessKeyID:  testAccessKey,
		SecretKey:    "secret-key",
		SessionToken: fmt.Sprintf("session-token-%d", p.federations),
		Expiration:   p.expiry,
	}, nil
}

func (p *fakeProvider) counts() (password, refresh, federations int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.passwordLogins, p.refreshLogins, p.federations
}

// newTestClient creates a Client for url with an unauthenticated session.
func newTestClient(t *testing.T, url string, provider CredentialProvider) *Client {
	t.Helper()

	session := NewSessionManager(provider, slog.Default())

	return NewClient(url, testRegion, http.DefaultClient, session, slog.Default())
}

// newAuthedClient creates a Client for url whose session is authenticated
// against a fresh fakeProvider.
func newAuthedClient(t *testing.T, url string) (*Client, *fakeProvider) {
	t.Helper()

	provider := newFakeProvider()
	client := newTestClient(t, url, provider)
	require.NoError(t, client.session.Authenticate(context.Background(), UsernamePassword("user", "pass")))

	return client, provider
}

// fakeBackend is an in-memory MI API plus presigned storage endpoints.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	tasks    map[string]*Task
	order    []string
	checks   map[string]string // job id -> submitted md5checksum
	uploads  map[string][]byte
	models   map[string][]byte
	archives map[string][]byte
	nextID   int

	corruptModel bool
	requests     atomic.Int32
	lastQuery    map[string][]string
	lastAuth     string
	lastToken    string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		t:        t,
		tasks:    make(map[string]*Task),
		checks:   make(map[string]string),
		uploads:  make(map[string][]byte),
		models:   make(map[string][]byte),
		archives: make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", b.handleListTasks)
	mux.HandleFunc("POST /tasks", b.handleSubmit)
	mux.HandleFunc("GET /tasks/{id}", b.handleGetTask)
	mux.HandleFunc("DELETE /tasks/{id}", b.handleDeleteTask)
	mux.HandleFunc("GET /fundportfolio", b.handleFundPortfolio)
	mux.HandleFunc("PUT /upload/{id}", b.handleUpload)
	mux.HandleFunc("GET /model/{id}", b.handleModel)
	mux.HandleFunc("GET /archives", b.handleListArchives)
	mux.HandleFunc("GET /archive", b.handleArchiveLink)
	mux.HandleFunc("PUT /archive-upload/{name}", b.handleArchiveUpload)
	mux.HandleFunc("DELETE /archive", b.handleDeleteArchive)

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)

		b.mu.Lock()
		b.lastQuery = r.URL.Query()
		if !strings.HasPrefix(r.URL.Path, "/upload/") && !strings.HasPrefix(r.URL.Path, "/model/") &&
			!strings.HasPrefix(r.URL.Path, "/archive-upload/") {
			b.lastAuth = r.Header.Get("Authorization")
			b.lastToken = r.Header.Get("X-Amz-Security-Token")
		}
		b.mu.Unlock()

		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)

	return b
}

func (b *fakeBackend) URL() string {
	return b.srv.URL
}

// requireSigned rejects API requests without a SigV4 Authorization header.
func requireSigned(w http.ResponseWriter, r *http.Request) bool {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 ") {
		http.Error(w, `{"message":"Missing Authentication Token"}`, http.StatusForbidden)
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if !requireSigned(w, r) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	company := r.URL.Query().Get("company")
	tasks := []Task{}

	for _, id := range b.order {
		task, ok := b.tasks[id]
		if !ok {
			continue
		}

		if company != "" && task.CompanyName != company {
			continue
		}

		tasks = append(tasks, *task)
	}

	if len(tasks) == 0 {
		writeJSON(w, map[string]any{})
		return
	}

	writeJSON(w, map[string]any{"tasks": tasks})
}

func (b *fakeBackend) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !requireSigned(w, r) {
		return
	}

	var params SubmitParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := fmt.Sprintf("job-%d", b.nextID)

	b.tasks[id] = &Task{
		JobID:          id,
		Client:         "client-1",
		Status:         StatusPending,
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
	if !requireSigned(w, r) {
		return
	}

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
	if !requireSigned(w, r) {
		return
	}

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

func (b *fakeBackend) handleFundPortfolio(w http.ResponseWriter, r *http.Request) {
	if !requireSigned(w, r) {
		return
	}

	ids := strings.Split(r.URL.Query().Get("jobids"), ";")

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range ids {
		task, ok := b.tasks[id]
		if !ok || task.Status != StatusSuccess {
			http.Error(w, `{"message":"model not ready"}`, http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, map[string]any{"model": map[string]any{"jobids": ids}})
}

func (b *fakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := r.PathValue("id")
	if r.Header.Get("Content-MD5") != ContentMD5(body) || b.checks[id] != ContentMD5(body) {
		http.Error(w, "<Error><Code>BadDigest</Code></Error>", http.StatusBadRequest)
		return
	}

	b.uploads[id] = body
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

	body := append([]byte(nil), model...)
	if b.corruptModel && len(body) > 0 {
		body[len(body)/2] ^= 0x01
	}

	_, _ = w.Write(body)
}

func (b *fakeBackend) handleListArchives(w http.ResponseWriter, r *http.Request) {
	if !requireSigned(w, r) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	archives := []map[string]string{}
	for name := range b.archives {
		archives = append(archives, map[string]string{
			"key":          name,
			"link":         b.srv.URL + "/archive-download/" + name,
			"lastModified": "2024-01-01T10:00:00Z",
		})
	}

	writeJSON(w, map[string]any{"archives": archives})
}

func (b *fakeBackend) handleArchiveLink(w http.ResponseWriter, r *http.Request) {
	if !requireSigned(w, r) {
		return
	}

	b.mu.Lock()
	n := len(b.archives) + 1
	b.mu.Unlock()

	writeJSON(w, fmt.Sprintf("%s/archive-upload/archive_%d_2024-01-01T10%%3A00%%3A00.zip?X-Amz-Signature=abc",
		b.srv.URL, n))
}

func (b *fakeBackend) handleArchiveUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.Header.Get("Content-Type") != "application/zip" || r.Header.Get("Content-MD5") != ContentMD5(body) {
		http.Error(w, "<Error><Code>SignatureDoesNotMatch</Code></Error>", http.StatusForbidden)
		return
	}

	b.mu.Lock()
	b.archives[r.PathValue("name")] = body
	b.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (b *fakeBackend) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	if !requireSigned(w, r) {
		return
	}

	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.archives[req.Key]; !ok {
		http.Error(w, `{"message":"Not found"}`, http.StatusNotFound)
		return
	}

	delete(b.archives, req.Key)
	writeJSON(w, map[string]bool{"deleted": true})
}

// finish marks a task successful and publishes its model.
func (b *fakeBackend) finish(id string, model []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	task := b.tasks[id]
	require.NotNil(b.t, task, "unknown task %s", id)

	task.Status = StatusSuccess
	task.ModelURL = b.srv.URL + "/model/" + id + "?X-Amz-Signature=cafe"
	b.models[id] = model
}

// corrupt makes model downloads flip one byte after the ETag is computed.
func (b *fakeBackend) corrupt() {
	b.mu.Lock()
	b.corruptModel = true
	b.mu.Unlock()
}

func (b *fakeBackend) uploaded(id string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.uploads[id]
}

func (b *fakeBackend) query() map[string][]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastQuery
}
