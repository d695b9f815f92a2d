package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/queuehealth/internal/api"
	"github.com/odvcencio/queuehealth/internal/auth"
	"github.com/odvcencio/queuehealth/internal/database"
	"github.com/odvcencio/queuehealth/internal/jobs"
	"github.com/odvcencio/queuehealth/internal/service"
)

type fakeGateway struct {
	count  int64
	oldest *time.Time
	err    error
}

func (f *fakeGateway) Count(ctx context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func (f *fakeGateway) Oldest(ctx context.Context) (*time.Time, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.oldest, nil
}

func newTestServer(t *testing.T, gw jobs.Gateway, opts api.ServerOptions) *httptest.Server {
	t.Helper()
	if opts.EnableMetrics && opts.Registerer == nil {
		reg := prometheus.NewRegistry()
		opts.Registerer = reg
		opts.Gatherer = reg
	}
	ts := httptest.NewServer(api.NewServer(service.NewHealthService(gw), opts))
	t.Cleanup(ts.Close)
	return ts
}

func getBody(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, strings.TrimSpace(string(body))
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{err: jobs.ErrStoreUnavailable}, api.ServerOptions{})

	for _, path := range []string{"/status", "/api/v1/status"} {
		t.Run(path, func(t *testing.T) {
			resp, body := getBody(t, ts.URL+path)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
				t.Fatalf("Content-Type = %q, want application/json", got)
			}
			if body != `{"online":true}` {
				t.Fatalf("body = %s, want {\"online\":true}", body)
			}
		})
	}
}

func TestDelayedJobsEndpointScenarios(t *testing.T) {
	noon := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		gateway *fakeGateway
		want    string
	}{
		{
			name:    "pending jobs",
			gateway: &fakeGateway{count: 3, oldest: &noon},
			want:    `{"count":3,"oldest":"2023-01-01T12:00:00.000Z"}`,
		},
		{
			name:    "empty queue",
			gateway: &fakeGateway{count: 0},
			want:    `{"msg":"No delayed jobs found"}`,
		},
		{
			name:    "ten million jobs",
			gateway: &fakeGateway{count: 10_000_000, oldest: &noon},
			want:    `{"count":10000000,"oldest":"2023-01-01T12:00:00.000Z"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, tc.gateway, api.ServerOptions{})
			for _, path := range []string{"/delayed_jobs", "/api/v1/delayed_jobs"} {
				resp, body := getBody(t, ts.URL+path)
				if resp.StatusCode != http.StatusOK {
					t.Fatalf("%s: status = %d, want 200", path, resp.StatusCode)
				}
				if body != tc.want {
					t.Fatalf("%s: body = %s, want %s", path, body, tc.want)
				}
			}
		})
	}
}

func TestDelayedJobsEndpointStoreUnavailable(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{err: jobs.ErrStoreUnavailable}, api.ServerOptions{})

	resp, body := getBody(t, ts.URL+"/delayed_jobs")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if body != `{"error":"job queue store unavailable"}` {
		t.Fatalf("body = %s, want store unavailable error", body)
	}
}

func TestDelayedJobsEndpointRejectsOtherMethods(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{}, api.ServerOptions{})

	resp, err := http.Post(ts.URL+"/delayed_jobs", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHealthRoutesBypassMetricsAuth(t *testing.T) {
	authSvc := auth.NewService("test-secret-1234567890", time.Hour)
	ts := newTestServer(t, &fakeGateway{count: 0}, api.ServerOptions{
		AuthSvc:       authSvc,
		EnableMetrics: true,
	})

	for _, path := range []string{"/status", "/delayed_jobs"} {
		resp, _ := getBody(t, ts.URL+path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200 without credentials", path, resp.StatusCode)
		}
	}

	resp, _ := getBody(t, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/metrics status = %d, want 401 without credentials", resp.StatusCode)
	}

	token, err := authSvc.GenerateToken("prometheus", auth.ScopeMetricsRead)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200 with scrape token", authed.StatusCode)
	}
}

func TestMetricsRouteDisabled(t *testing.T) {
	ts := newTestServer(t, &fakeGateway{}, api.ServerOptions{})

	resp, _ := getBody(t, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("/metrics status = %d, want 404 when metrics are disabled", resp.StatusCode)
	}
}

func TestDelayedJobsEndpointReadsSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	db, err := database.OpenSQLite(dbPath, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	ts := newTestServer(t, jobs.NewQueue(db), api.ServerOptions{})

	_, body := getBody(t, ts.URL+"/delayed_jobs")
	if body != `{"msg":"No delayed jobs found"}` {
		t.Fatalf("empty store body = %s", body)
	}

	// Simulate the job engine writing through its own connection.
	engine, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	oldest := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, createdAt := range []time.Time{oldest.Add(time.Hour), oldest, oldest, oldest.Add(2 * time.Hour)} {
		if _, err := engine.Exec(`INSERT INTO delayed_jobs (handler, created_at, updated_at) VALUES (?, ?, ?)`,
			"--- !ruby/object:ReportJob {}", createdAt, createdAt); err != nil {
			t.Fatal(err)
		}
	}

	resp, body := getBody(t, ts.URL+"/delayed_jobs")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if payload["count"] != float64(4) {
		t.Fatalf("count = %#v, want 4", payload["count"])
	}
	if payload["oldest"] != "2023-01-01T12:00:00.000Z" {
		t.Fatalf("oldest = %#v, want 2023-01-01T12:00:00.000Z", payload["oldest"])
	}
	if _, ok := payload["msg"]; ok {
		t.Fatalf("msg present in %s", body)
	}
}

func TestDelayedJobsEndpointToleratesNullCreatedAt(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	db, err := database.OpenSQLite(dbPath, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	engine, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	ts := newTestServer(t, jobs.NewQueue(db), api.ServerOptions{})

	if _, err := engine.Exec(`INSERT INTO delayed_jobs (handler, created_at, updated_at) VALUES (?, NULL, NULL)`,
		"--- !ruby/object:LegacyJob {}"); err != nil {
		t.Fatal(err)
	}
	resp, body := getBody(t, ts.URL+"/delayed_jobs")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("only-null status = %d, want 200 (body %s)", resp.StatusCode, body)
	}
	if body != `{"msg":"No delayed jobs found"}` {
		t.Fatalf("only-null body = %s", body)
	}

	createdAt := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	if _, err := engine.Exec(`INSERT INTO delayed_jobs (handler, created_at, updated_at) VALUES (?, ?, ?)`,
		"--- !ruby/object:ReportJob {}", createdAt, createdAt); err != nil {
		t.Fatal(err)
	}
	resp, body = getBody(t, ts.URL+"/delayed_jobs")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mixed status = %d, want 200 (body %s)", resp.StatusCode, body)
	}
	if body != `{"count":2,"oldest":"2023-01-01T12:00:00.000Z"}` {
		t.Fatalf("mixed body = %s", body)
	}
}
