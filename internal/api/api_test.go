// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/punchd-io/punchd/internal/attendance"
	"github.com/punchd-io/punchd/internal/audit"
	"github.com/punchd-io/punchd/internal/auth"
	"github.com/punchd-io/punchd/internal/clock"
	"github.com/punchd-io/punchd/internal/config"
	"github.com/punchd-io/punchd/internal/identity"
	"github.com/punchd-io/punchd/internal/models"
	"github.com/punchd-io/punchd/internal/reconcile"
	"github.com/punchd-io/punchd/internal/scheduler"
	"github.com/punchd-io/punchd/internal/store"
	ws "github.com/punchd-io/punchd/internal/websocket"
)

const testPassword = "hunter2"

type testAPI struct {
	router http.Handler
	store  *store.Store
	jwt    *auth.JWTManager
}

// newTestAPI wires the full route tree against an in-memory store with no
// mirror client and admin auth configured.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	st, err := store.Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	norm, err := clock.New("UTC")
	if err != nil {
		t.Fatalf("clock.New: %v", err)
	}

	engine := reconcile.NewEngine(st, nil, norm, time.Minute, 2*time.Minute)
	machine := attendance.NewMachine(st, engine, norm, attendance.Config{
		Cooldown:   600 * time.Second,
		Debounce:   8 * time.Second,
		DefaultEnd: "17:00",
	})
	resolver := identity.NewTable(0.6)
	sched := scheduler.New(st, engine, nil, time.Minute)

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	secCfg := &config.SecurityConfig{
		JWTSecret:         "test-secret-at-least-long-enough",
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		SessionTimeout:    time.Hour,
	}
	verifier := auth.NewVerifier(secCfg)
	jwtManager, err := auth.NewJWTManager(secCfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	handler := NewHandler(HandlerDeps{
		Store:    st,
		Machine:  machine,
		Resolver: resolver,
		Sched:    sched,
		Engine:   engine,
		Hub:      ws.NewHub(),
		Verifier: verifier,
		JWT:      jwtManager,
		Audit:    audit.NewRecorder(st, 0),
		Norm:     norm,
		Version:  "test",
	})
	mw := NewMiddleware(&MiddlewareConfig{}, jwtManager)

	return &testAPI{
		router: NewRouter(handler, mw).Setup(),
		store:  st,
		jwt:    jwtManager,
	}
}

func (a *testAPI) token(t *testing.T) string {
	t.Helper()
	token, err := a.jwt.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

// do performs a request and decodes the response envelope.
func (a *testAPI) do(t *testing.T, method, path, token string, body any) (int, *APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var envelope APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode envelope (%s): %v", rec.Body.String(), err)
		}
	}
	return rec.Code, &envelope
}

func decodeData(t *testing.T, envelope *APIResponse, v any) {
	t.Helper()
	raw, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("remarshal data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func (a *testAPI) seedEmployee(t *testing.T, id string, encoding []float64) {
	t.Helper()
	err := a.store.PutEmployee(&models.Employee{
		ID:            id,
		DisplayName:   "Ada",
		RemoteOwnerID: "owner-" + id,
		FaceEncoding:  encoding,
	})
	if err != nil {
		t.Fatalf("seed employee: %v", err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestAPI(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"} {
		code, envelope := a.do(t, http.MethodGet, path, "", nil)
		if code != http.StatusOK {
			t.Errorf("%s: code = %d", path, code)
		}
		if envelope.Status != "ok" {
			t.Errorf("%s: status = %q", path, envelope.Status)
		}
	}
}

func TestPostEventByEmployeeID(t *testing.T) {
	a := newTestAPI(t)
	a.seedEmployee(t, "emp-1", nil)

	code, envelope := a.do(t, http.MethodPost, "/api/v1/events", "", map[string]any{
		"employee_id": "emp-1",
		"action":      "checkin",
	})
	if code != http.StatusOK {
		t.Fatalf("code = %d (%+v)", code, envelope.Error)
	}

	var res struct {
		Status      string              `json:"status"`
		FinalAction string              `json:"final_action"`
		Record      *models.DailyRecord `json:"record"`
	}
	decodeData(t, envelope, &res)
	if res.Status != "offline" {
		t.Errorf("status = %q, want offline (no mirror)", res.Status)
	}
	if res.FinalAction != "checkin" {
		t.Errorf("final_action = %q", res.FinalAction)
	}
	if res.Record == nil || res.Record.CheckIn == nil {
		t.Error("record missing check_in")
	}
}

func TestPostEventBySample(t *testing.T) {
	a := newTestAPI(t)
	a.seedEmployee(t, "emp-1", []float64{1, 0, 0})

	// The identity table is rebuilt through the admin path normally; seed
	// via a registration request so the snapshot includes the encoding.
	code, _ := a.do(t, http.MethodPost, "/api/v1/employees", a.token(t), map[string]any{
		"display_name":  "Grace",
		"face_encoding": []float64{0, 1, 0},
	})
	if code != http.StatusCreated {
		t.Fatalf("register code = %d", code)
	}

	code, envelope := a.do(t, http.MethodPost, "/api/v1/events", "", map[string]any{
		"sample": []float64{0.05, 0.98, 0},
		"action": "checkin",
	})
	if code != http.StatusOK {
		t.Fatalf("code = %d (%+v)", code, envelope.Error)
	}
}

func TestPostEventUnknownSample(t *testing.T) {
	a := newTestAPI(t)

	code, envelope := a.do(t, http.MethodPost, "/api/v1/events", "", map[string]any{
		"sample": []float64{1, 2, 3},
		"action": "checkin",
	})
	if code != http.StatusNotFound {
		t.Fatalf("code = %d", code)
	}
	if envelope.Error == nil || envelope.Error.Code != "UNKNOWN_IDENTITY" {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestPostEventValidation(t *testing.T) {
	a := newTestAPI(t)
	a.seedEmployee(t, "emp-1", nil)

	// Unknown action fails request validation before the state machine.
	code, envelope := a.do(t, http.MethodPost, "/api/v1/events", "", map[string]any{
		"employee_id": "emp-1",
		"action":      "teleport",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("code = %d", code)
	}
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v", envelope.Error)
	}

	// Neither employee_id nor sample present.
	code, _ = a.do(t, http.MethodPost, "/api/v1/events", "", map[string]any{"action": "checkin"})
	if code != http.StatusBadRequest {
		t.Errorf("code = %d", code)
	}

	// Garbage timestamp.
	code, envelope = a.do(t, http.MethodPost, "/api/v1/events", "", map[string]any{
		"employee_id": "emp-1",
		"action":      "checkin",
		"captured_at": "not-a-time",
	})
	if code != http.StatusBadRequest {
		t.Errorf("code = %d", code)
	}
	if envelope.Error == nil || envelope.Error.Code != "INVALID_TIMESTAMP" {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestPostEventGuardConflict(t *testing.T) {
	a := newTestAPI(t)
	a.seedEmployee(t, "emp-1", nil)

	code, envelope := a.do(t, http.MethodPost, "/api/v1/events", "", map[string]any{
		"employee_id": "emp-1",
		"action":      "checkout",
	})
	if code != http.StatusConflict {
		t.Fatalf("code = %d", code)
	}
	if envelope.Error == nil || envelope.Error.Code != "TRANSITION_REJECTED" {
		t.Fatalf("error = %+v", envelope.Error)
	}
	details, ok := envelope.Error.Details.(map[string]interface{})
	if !ok || details["kind"] != "precursor_missing" {
		t.Errorf("details = %+v, want kind precursor_missing", envelope.Error.Details)
	}
}

func TestEmployeeCRUDFlow(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)

	code, envelope := a.do(t, http.MethodPost, "/api/v1/employees", token, map[string]any{
		"display_name":    "Grace",
		"remote_owner_id": "owner-9",
	})
	if code != http.StatusCreated {
		t.Fatalf("register code = %d (%+v)", code, envelope.Error)
	}
	var created models.Employee
	decodeData(t, envelope, &created)
	if created.ID == "" || created.DisplayName != "Grace" {
		t.Fatalf("created = %+v", created)
	}
	if created.Department != models.DefaultDepartment {
		t.Errorf("department = %q, want default", created.Department)
	}

	code, envelope = a.do(t, http.MethodGet, "/api/v1/employees/"+created.ID, "", nil)
	if code != http.StatusOK {
		t.Fatalf("get code = %d", code)
	}

	code, envelope = a.do(t, http.MethodPut, "/api/v1/employees/"+created.ID, token, map[string]any{
		"department": "Engineering",
	})
	if code != http.StatusOK {
		t.Fatalf("update code = %d (%+v)", code, envelope.Error)
	}
	var updated models.Employee
	decodeData(t, envelope, &updated)
	if updated.Department != "Engineering" || updated.DisplayName != "Grace" {
		t.Errorf("updated = %+v", updated)
	}

	code, _ = a.do(t, http.MethodDelete, "/api/v1/employees/"+created.ID, token, nil)
	if code != http.StatusOK {
		t.Fatalf("delete code = %d", code)
	}
	code, _ = a.do(t, http.MethodGet, "/api/v1/employees/"+created.ID, "", nil)
	if code != http.StatusNotFound {
		t.Errorf("get after delete code = %d", code)
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	a := newTestAPI(t)

	code, envelope := a.do(t, http.MethodPost, "/api/v1/employees", "", map[string]any{
		"display_name": "Grace",
	})
	if code != http.StatusUnauthorized {
		t.Fatalf("code = %d", code)
	}
	if envelope.Error == nil || envelope.Error.Code != "UNAUTHORIZED" {
		t.Errorf("error = %+v", envelope.Error)
	}

	code, _ = a.do(t, http.MethodPost, "/api/v1/employees", "not-a-token", map[string]any{
		"display_name": "Grace",
	})
	if code != http.StatusUnauthorized {
		t.Errorf("bad token code = %d", code)
	}
}

func TestRecordFlow(t *testing.T) {
	a := newTestAPI(t)
	a.seedEmployee(t, "emp-1", nil)
	token := a.token(t)

	code, _ := a.do(t, http.MethodPost, "/api/v1/events", "", map[string]any{
		"employee_id": "emp-1",
		"action":      "checkin",
		"captured_at": "2026-03-09T08:30:00Z",
	})
	if code != http.StatusOK {
		t.Fatalf("event code = %d", code)
	}

	code, envelope := a.do(t, http.MethodGet, "/api/v1/records/emp-1/2026-03-09", "", nil)
	if code != http.StatusOK {
		t.Fatalf("get record code = %d", code)
	}
	var rec models.DailyRecord
	decodeData(t, envelope, &rec)
	if rec.CheckIn == nil {
		t.Fatal("record missing check_in")
	}

	// Invalid date in path.
	code, _ = a.do(t, http.MethodGet, "/api/v1/records/emp-1/not-a-date", "", nil)
	if code != http.StatusBadRequest {
		t.Errorf("invalid date code = %d", code)
	}

	// Administrative override re-marks the record pending.
	code, envelope = a.do(t, http.MethodPatch, "/api/v1/records/emp-1/2026-03-09", token, map[string]any{
		"check_out": "2026-03-09T17:00:00Z",
		"source":    "continue_working_from_home",
	})
	if code != http.StatusOK {
		t.Fatalf("override code = %d (%+v)", code, envelope.Error)
	}
	decodeData(t, envelope, &rec)
	if rec.CheckOut == nil || rec.Source != models.SourceRemoteCont {
		t.Errorf("overridden record = %+v", rec)
	}
	if rec.SyncStatus != models.SyncPending {
		t.Errorf("SyncStatus = %s, want pending after override", rec.SyncStatus)
	}

	// List newest first.
	code, envelope = a.do(t, http.MethodGet, "/api/v1/records/emp-1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("list code = %d", code)
	}
	var records []models.DailyRecord
	decodeData(t, envelope, &records)
	if len(records) != 1 {
		t.Errorf("records = %d, want 1", len(records))
	}

	// Delete.
	code, _ = a.do(t, http.MethodDelete, "/api/v1/records/emp-1/2026-03-09", token, nil)
	if code != http.StatusOK {
		t.Fatalf("delete code = %d", code)
	}
	code, _ = a.do(t, http.MethodGet, "/api/v1/records/emp-1/2026-03-09", "", nil)
	if code != http.StatusNotFound {
		t.Errorf("get after delete code = %d", code)
	}
}

func TestSyncStatus(t *testing.T) {
	a := newTestAPI(t)

	code, envelope := a.do(t, http.MethodGet, "/api/v1/sync/status", "", nil)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var status struct {
		SchedulerRunning bool `json:"scheduler_running"`
		PendingRecords   int  `json:"pending_records"`
		MirrorOnline     bool `json:"mirror_online"`
	}
	decodeData(t, envelope, &status)
	if status.MirrorOnline {
		t.Error("mirror_online = true with nil client")
	}
	if status.SchedulerRunning {
		t.Error("scheduler_running = true without Serve")
	}
}

func TestTriggerSync(t *testing.T) {
	a := newTestAPI(t)

	code, _ := a.do(t, http.MethodPost, "/api/v1/sync/trigger", a.token(t), nil)
	if code != http.StatusAccepted {
		t.Errorf("code = %d, want 202", code)
	}
}

func TestLogin(t *testing.T) {
	a := newTestAPI(t)

	code, envelope := a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": testPassword,
	})
	if code != http.StatusOK {
		t.Fatalf("code = %d (%+v)", code, envelope.Error)
	}
	var res struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	decodeData(t, envelope, &res)
	if res.Token == "" || res.ExpiresIn != 3600 {
		t.Errorf("login response = %+v", res)
	}

	// The issued token authorizes admin mutations.
	code, _ = a.do(t, http.MethodPost, "/api/v1/employees", res.Token, map[string]any{
		"display_name": "Grace",
	})
	if code != http.StatusCreated {
		t.Errorf("mutation with issued token code = %d", code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a := newTestAPI(t)

	code, envelope := a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	if code != http.StatusUnauthorized {
		t.Fatalf("code = %d", code)
	}
	if envelope.Error == nil || envelope.Error.Code != "INVALID_CREDENTIALS" {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestAuditTrailEndpoint(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)

	code, _ := a.do(t, http.MethodPost, "/api/v1/employees", token, map[string]any{
		"display_name": "Grace",
	})
	if code != http.StatusCreated {
		t.Fatalf("register code = %d", code)
	}

	code, envelope := a.do(t, http.MethodGet, "/api/v1/audit", token, nil)
	if code != http.StatusOK {
		t.Fatalf("audit code = %d", code)
	}
	var events []audit.Event
	decodeData(t, envelope, &events)
	if len(events) != 1 || events[0].Type != audit.TypeEmployeeRegistered {
		t.Errorf("events = %+v", events)
	}
	if events[0].Actor != "admin" {
		t.Errorf("actor = %q, want admin (from token)", events[0].Actor)
	}
}

func TestBackupsDisabled(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)

	code, envelope := a.do(t, http.MethodPost, "/api/v1/backups", token, nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", code)
	}
	if envelope.Error == nil || envelope.Error.Code != "BACKUP_DISABLED" {
		t.Errorf("error = %+v", envelope.Error)
	}
}
