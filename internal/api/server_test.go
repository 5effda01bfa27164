package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"uptask/internal/config"
	"uptask/internal/model"
	"uptask/internal/pkg/logger"
	"uptask/internal/pkg/notify"
	"uptask/internal/store/gormstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
)

type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func (n *captureNotifier) NotifyConfirmation(r notify.Recipient) { n.record(r) }

func (n *captureNotifier) NotifyPasswordReset(r notify.Recipient) { n.record(r) }

func (n *captureNotifier) record(r notify.Recipient) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[r.Email] = r.Code
	n.sent++
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}

func (n *captureNotifier) code(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

type testServer struct {
	t        *testing.T
	srv      *Server
	handler  http.Handler
	notifier *captureNotifier
}

func newTestServer(t *testing.T, loginBurst float64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := gormstore.Open(sqlite.Open("file::memory:"), gormstore.Options{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		App: config.AppConfig{CORSOrigins: []string{"http://localhost:5173"}},
		Security: config.SecurityConfig{
			JWTSecret:  "test-secret",
			JWTTTL:     time.Hour,
			TokenTTL:   10 * time.Minute,
			LoginRate:  0.001,
			LoginBurst: loginBurst,
		},
	}
	n := &captureNotifier{codes: map[string]string{}}
	srv := New(cfg, logger.Discard(), Deps{Store: st, Redis: rdb, Notifier: n})
	t.Cleanup(func() { _ = srv.Close() })

	return &testServer{t: t, srv: srv, handler: srv.Router(), notifier: n}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) expect(w *httptest.ResponseRecorder, code int) {
	ts.t.Helper()
	if w.Code != code {
		ts.t.Fatalf("expected %d, got %d: %s", code, w.Code, w.Body.String())
	}
}

// signup 注册、确认并登录，返回 JWT。
func (ts *testServer) signup(name, email string) string {
	ts.t.Helper()
	ts.expect(ts.do(http.MethodPost, "/api/auth/create-account", "", gin.H{
		"name": name, "email": email, "password": "password123", "password_confirmation": "password123",
	}), http.StatusOK)
	ts.expect(ts.do(http.MethodPost, "/api/auth/confirm-account", "", gin.H{"token": ts.notifier.code(email)}), http.StatusOK)

	w := ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": "password123"})
	ts.expect(w, http.StatusOK)
	return w.Body.String()
}

func (ts *testServer) me(token string) model.User {
	ts.t.Helper()
	w := ts.do(http.MethodGet, "/api/auth/user", token, nil)
	ts.expect(w, http.StatusOK)
	var u model.User
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		ts.t.Fatalf("decode user: %v", err)
	}
	return u
}

func (ts *testServer) onlyProject(token string) model.Project {
	ts.t.Helper()
	w := ts.do(http.MethodGet, "/api/projects", token, nil)
	ts.expect(w, http.StatusOK)
	var list []model.Project
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		ts.t.Fatalf("decode projects: %v", err)
	}
	if len(list) != 1 {
		ts.t.Fatalf("expected one project, got %d", len(list))
	}
	return list[0]
}

func TestCreateAccount_ValidationErrors(t *testing.T) {
	ts := newTestServer(t, 10)

	w := ts.do(http.MethodPost, "/api/auth/create-account", "", gin.H{
		"name": "Alice", "email": "not-an-email", "password": "short", "password_confirmation": "other",
	})
	ts.expect(w, http.StatusBadRequest)

	var resp struct {
		Errors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	fields := map[string]bool{}
	for _, e := range resp.Errors {
		fields[e.Field] = true
	}
	for _, f := range []string{"email", "password", "password_confirmation"} {
		if !fields[f] {
			t.Fatalf("expected error for %s, got %+v", f, resp.Errors)
		}
	}
}

func TestCreateAccount_PasswordTooLong(t *testing.T) {
	ts := newTestServer(t, 10)
	long := strings.Repeat("a", 80)

	w := ts.do(http.MethodPost, "/api/auth/create-account", "", gin.H{
		"name": "Alice", "email": "alice@example.com", "password": long, "password_confirmation": long,
	})
	ts.expect(w, http.StatusBadRequest)
	if !strings.Contains(w.Body.String(), "must be at most 72 characters") {
		t.Fatalf("expected max length field error, got %s", w.Body.String())
	}
	// 多字节字符按字符数通过绑定，由服务层按字节数拒绝
	wide := strings.Repeat("密", 30)
	w = ts.do(http.MethodPost, "/api/auth/create-account", "", gin.H{
		"name": "Alice", "email": "alice@example.com", "password": wide, "password_confirmation": wide,
	})
	ts.expect(w, http.StatusBadRequest)
	if ts.notifier.count() != 0 {
		t.Fatalf("expected no email for rejected signups")
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	ts := newTestServer(t, 10)
	ts.signup("Alice", "alice@example.com")

	w := ts.do(http.MethodPost, "/api/auth/create-account", "", gin.H{
		"name": "Alice", "email": "alice@example.com", "password": "password123", "password_confirmation": "password123",
	})
	ts.expect(w, http.StatusConflict)
	if !strings.Contains(w.Body.String(), `"error"`) {
		t.Fatalf("expected error body, got %s", w.Body.String())
	}
}

func TestLogin_Unconfirmed(t *testing.T) {
	ts := newTestServer(t, 10)
	ts.expect(ts.do(http.MethodPost, "/api/auth/create-account", "", gin.H{
		"name": "Alice", "email": "alice@example.com", "password": "password123", "password_confirmation": "password123",
	}), http.StatusOK)
	first := ts.notifier.code("alice@example.com")

	ts.expect(ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "password123"}), http.StatusUnauthorized)
	ts.expect(ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "nobody@example.com", "password": "password123"}), http.StatusNotFound)

	if got := ts.notifier.count(); got != 2 {
		t.Fatalf("expected confirmation to be re-sent, got %d emails", got)
	}
	ts.expect(ts.do(http.MethodPost, "/api/auth/validate-token", "", gin.H{"token": first}), http.StatusOK)
}

func TestLogin_RateLimited(t *testing.T) {
	ts := newTestServer(t, 2)
	body := gin.H{"email": "nobody@example.com", "password": "password123"}

	ts.expect(ts.do(http.MethodPost, "/api/auth/login", "", body), http.StatusNotFound)
	ts.expect(ts.do(http.MethodPost, "/api/auth/login", "", body), http.StatusNotFound)
	w := ts.do(http.MethodPost, "/api/auth/login", "", body)
	ts.expect(w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, 10)
	ts.expect(ts.do(http.MethodGet, "/api/projects", "", nil), http.StatusUnauthorized)
	ts.expect(ts.do(http.MethodGet, "/api/projects", "garbage", nil), http.StatusUnauthorized)
	ts.expect(ts.do(http.MethodGet, "/api/auth/user", "", nil), http.StatusUnauthorized)
}

func TestPasswordRecovery(t *testing.T) {
	ts := newTestServer(t, 10)
	ts.signup("Alice", "alice@example.com")

	ts.expect(ts.do(http.MethodPost, "/api/auth/forgot-password", "", gin.H{"email": "alice@example.com"}), http.StatusOK)
	code := ts.notifier.code("alice@example.com")
	ts.expect(ts.do(http.MethodPost, "/api/auth/validate-token", "", gin.H{"token": code}), http.StatusOK)
	ts.expect(ts.do(http.MethodPost, "/api/auth/update-password/"+code, "", gin.H{
		"password": "new-password", "password_confirmation": "new-password",
	}), http.StatusOK)
	ts.expect(ts.do(http.MethodPost, "/api/auth/validate-token", "", gin.H{"token": code}), http.StatusUnauthorized)
	ts.expect(ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "new-password"}), http.StatusOK)
}

func TestProfileEndpoints(t *testing.T) {
	ts := newTestServer(t, 10)
	alice := ts.signup("Alice", "alice@example.com")
	ts.signup("Bob", "bob@example.com")

	if u := ts.me(alice); u.Email != "alice@example.com" || !u.Confirmed {
		t.Fatalf("unexpected user %+v", u)
	}
	w := ts.do(http.MethodGet, "/api/auth/user", alice, nil)
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("password hash must not be exposed: %s", w.Body.String())
	}

	ts.expect(ts.do(http.MethodPut, "/api/auth/profile", alice, gin.H{"name": "Alice", "email": "bob@example.com"}), http.StatusConflict)
	ts.expect(ts.do(http.MethodPut, "/api/auth/profile", alice, gin.H{"name": "Alice B", "email": "alice@example.com"}), http.StatusOK)
	ts.expect(ts.do(http.MethodPost, "/api/auth/check-password", alice, gin.H{"password": "wrong"}), http.StatusUnauthorized)
	ts.expect(ts.do(http.MethodPost, "/api/auth/update-password", alice, gin.H{
		"current_password": "password123", "password": "password456", "password_confirmation": "password456",
	}), http.StatusOK)
	ts.expect(ts.do(http.MethodPost, "/api/auth/check-password", alice, gin.H{"password": "password456"}), http.StatusOK)
}

func TestScenario_ProjectTeamTasksNotes(t *testing.T) {
	ts := newTestServer(t, 10)
	alice := ts.signup("Alice", "alice@example.com")
	bob := ts.signup("Bob", "bob@example.com")
	carol := ts.signup("Carol", "carol@example.com")

	ts.expect(ts.do(http.MethodPost, "/api/projects", alice, gin.H{
		"projectName": "Website", "clientName": "ACME", "description": "Landing page",
	}), http.StatusOK)
	project := ts.onlyProject(alice)
	base := "/api/projects/" + project.ID

	// 外部用户看不到项目
	ts.expect(ts.do(http.MethodGet, base, carol, nil), http.StatusNotFound)
	ts.expect(ts.do(http.MethodGet, "/api/projects/not-a-uuid", alice, nil), http.StatusBadRequest)

	w := ts.do(http.MethodPost, base+"/team/find", alice, gin.H{"email": "bob@example.com"})
	ts.expect(w, http.StatusOK)
	var found model.UserSummary
	if err := json.Unmarshal(w.Body.Bytes(), &found); err != nil {
		t.Fatalf("decode member: %v", err)
	}
	ts.expect(ts.do(http.MethodPost, base+"/team", alice, gin.H{"id": found.ID}), http.StatusOK)
	ts.expect(ts.do(http.MethodPost, base+"/team", alice, gin.H{"id": found.ID}), http.StatusConflict)
	ts.expect(ts.do(http.MethodPost, base+"/team", alice, gin.H{"id": ts.me(alice).ID}), http.StatusConflict)

	if got := ts.onlyProject(bob); got.ID != project.ID {
		t.Fatalf("expected bob to see the project")
	}
	ts.expect(ts.do(http.MethodGet, base, bob, nil), http.StatusOK)
	ts.expect(ts.do(http.MethodPost, base+"/tasks", bob, gin.H{"name": "T", "description": "D"}), http.StatusForbidden)

	ts.expect(ts.do(http.MethodPost, base+"/tasks", alice, gin.H{"name": "Design", "description": "Mockups"}), http.StatusOK)
	w = ts.do(http.MethodGet, base+"/tasks", bob, nil)
	ts.expect(w, http.StatusOK)
	var tasks []model.Task
	if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil || len(tasks) != 1 {
		t.Fatalf("expected one task, got %s", w.Body.String())
	}
	taskPath := base + "/tasks/" + tasks[0].ID

	ts.expect(ts.do(http.MethodPost, taskPath+"/status", bob, gin.H{"status": "nope"}), http.StatusBadRequest)
	ts.expect(ts.do(http.MethodPost, taskPath+"/status", bob, gin.H{"status": "inProgress"}), http.StatusOK)
	ts.expect(ts.do(http.MethodPost, taskPath+"/notes", bob, gin.H{"content": "on it"}), http.StatusOK)

	w = ts.do(http.MethodGet, taskPath, alice, nil)
	ts.expect(w, http.StatusOK)
	var detail struct {
		Status      string `json:"status"`
		CompletedBy []struct {
			User   model.UserSummary `json:"user"`
			Status string            `json:"status"`
		} `json:"completedBy"`
		Notes []struct {
			ID        string            `json:"_id"`
			Content   string            `json:"content"`
			CreatedBy model.UserSummary `json:"createdBy"`
		} `json:"notes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if detail.Status != "inProgress" || len(detail.CompletedBy) != 1 || detail.CompletedBy[0].User.Email != "bob@example.com" {
		t.Fatalf("unexpected task detail %s", w.Body.String())
	}
	if len(detail.Notes) != 1 || detail.Notes[0].CreatedBy.Name != "Bob" {
		t.Fatalf("unexpected notes %s", w.Body.String())
	}
	notePath := taskPath + "/notes/" + detail.Notes[0].ID
	ts.expect(ts.do(http.MethodDelete, notePath, alice, nil), http.StatusForbidden)
	ts.expect(ts.do(http.MethodDelete, notePath, bob, nil), http.StatusOK)

	ts.expect(ts.do(http.MethodDelete, base, bob, nil), http.StatusForbidden)
	ts.expect(ts.do(http.MethodDelete, taskPath, alice, nil), http.StatusOK)
	ts.expect(ts.do(http.MethodGet, taskPath, alice, nil), http.StatusNotFound)

	ts.expect(ts.do(http.MethodDelete, base+"/team/"+found.ID, alice, nil), http.StatusOK)
	ts.expect(ts.do(http.MethodGet, base, bob, nil), http.StatusNotFound)

	ts.expect(ts.do(http.MethodDelete, base, alice, nil), http.StatusOK)
	ts.expect(ts.do(http.MethodGet, base, alice, nil), http.StatusNotFound)
}

func TestTaskFromOtherProject(t *testing.T) {
	ts := newTestServer(t, 10)
	alice := ts.signup("Alice", "alice@example.com")

	for _, name := range []string{"One", "Two"} {
		ts.expect(ts.do(http.MethodPost, "/api/projects", alice, gin.H{
			"projectName": name, "clientName": "C", "description": "D",
		}), http.StatusOK)
	}
	w := ts.do(http.MethodGet, "/api/projects", alice, nil)
	ts.expect(w, http.StatusOK)
	var list []model.Project
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("expected two projects, got %s", w.Body.String())
	}

	ts.expect(ts.do(http.MethodPost, "/api/projects/"+list[0].ID+"/tasks", alice, gin.H{"name": "T", "description": "D"}), http.StatusOK)
	w = ts.do(http.MethodGet, "/api/projects/"+list[0].ID+"/tasks", alice, nil)
	ts.expect(w, http.StatusOK)
	var tasks []model.Task
	if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil || len(tasks) != 1 {
		t.Fatalf("expected one task, got %s", w.Body.String())
	}

	ts.expect(ts.do(http.MethodGet, "/api/projects/"+list[1].ID+"/tasks/"+tasks[0].ID, alice, nil), http.StatusBadRequest)
}

func TestHealthzAndMetrics(t *testing.T) {
	ts := newTestServer(t, 10)

	w := ts.do(http.MethodGet, "/healthz", "", nil)
	ts.expect(w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("unexpected healthz body %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	w = ts.do(http.MethodGet, "/metrics", "", nil)
	ts.expect(w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "uptask_http_requests_total") {
		t.Fatalf("expected request metrics to be exported")
	}
}

func TestSeedDemoData_Idempotent(t *testing.T) {
	ts := newTestServer(t, 10)
	ts.srv.cfg.App.SeedDemo = true
	ts.srv.cfg.App.DemoPassword = "demo-password"

	for i := 0; i < 2; i++ {
		if err := ts.srv.SeedDemoData(context.Background()); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	w := ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": demoEmail, "password": "demo-password"})
	ts.expect(w, http.StatusOK)
	project := ts.onlyProject(w.Body.String())
	if len(project.Tasks) != len(demoTasks) {
		t.Fatalf("expected %d demo tasks, got %d", len(demoTasks), len(project.Tasks))
	}
}
