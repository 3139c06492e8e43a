package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hrmprivacy/internal/app/server"
	"hrmprivacy/internal/domain/auth"
	"hrmprivacy/internal/platform/config"
	"hrmprivacy/internal/platform/storage"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	RequestID string `json:"requestId"`
}

type testEnv struct {
	app    *server.App
	server *httptest.Server
	hr     string
	staff  string
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Environment:           "test",
		StorageDriver:         config.StorageMemory,
		JWTSecret:             testSecret,
		ExportDir:             t.TempDir(),
		ExportExpiryDays:      30,
		RetentionBatchSize:    100,
		RetentionSchedule:     "off",
		ExportCleanupSchedule: "off",
		MetricsEnabled:        true,
		MaxBodyBytes:          1048576,
		RateLimitPerMinute:    1000,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	app, err := server.New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	ts := httptest.NewServer(app.Router)
	t.Cleanup(func() {
		ts.Close()
		app.Close()
	})
	return &testEnv{
		app:    app,
		server: ts,
		hr:     token(t, "hr-1", auth.RoleHR),
		staff:  token(t, "emp-1", auth.RoleEmployee),
	}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, auth.Claims{UserID: userID, RoleID: role, RoleName: role}, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

// call performs the request, checks the status and decodes the envelope data
// into out when out is non-nil.
func (e *testEnv) call(t *testing.T, method, path, tok string, body any, wantStatus int, out any, headers ...string) envelope {
	t.Helper()
	resp, raw := e.do(t, method, path, tok, body, headers...)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, wantStatus, resp.StatusCode, raw)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("%s %s: decode envelope: %v (%s)", method, path, err, raw)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
	return env
}

func mustInsert(t *testing.T, gw storage.Gateway, table string, row storage.Row) {
	t.Helper()
	if _, err := gw.Insert(context.Background(), table, row); err != nil {
		t.Fatalf("insert %s: %v", table, err)
	}
}

func seedSubject(t *testing.T, gw storage.Gateway, id string) {
	t.Helper()
	created := time.Now().UTC().AddDate(0, -1, 0)
	mustInsert(t, gw, storage.TableEmployees, storage.Row{
		"id":                        id,
		"first_name":                "Grace",
		"last_name":                 "Hopper",
		"email":                     "grace@example.com",
		"phone":                     "+44 7700 900001",
		"address":                   "1 Compiler Lane",
		"national_insurance_number": "QQ654321A",
		"job_title":                 "Engineer",
		"status":                    "active",
		"created_at":                created,
	})
	mustInsert(t, gw, storage.TablePayrollResults, storage.Row{
		"id": id + "-pay-1", "employee_id": id, "gross_pay": 4000.0, "net_pay": 3000.0, "created_at": created,
	})
	mustInsert(t, gw, storage.TableTimesheetEntries, storage.Row{
		"id": id + "-ts-1", "employee_id": id, "notes": "on site", "location": "York", "created_at": created,
	})
}
