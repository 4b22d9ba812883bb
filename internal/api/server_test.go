package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/smarthouse-core/internal/audit"
	"github.com/nerrad567/smarthouse-core/internal/house"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthouse-core/internal/powerswitch"
)

type staticStatus string

func (s staticStatus) Status(context.Context) string { return string(s) }

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

type fakeSwitch struct {
	resp powerswitch.Response
	err  error
	got  []powerswitch.Command
}

func (f *fakeSwitch) Command(_ context.Context, cmd powerswitch.Command) (powerswitch.Response, error) {
	f.got = append(f.got, cmd)
	return f.resp, f.err
}

func testLogger() *logging.Logger {
	return logging.Discard()
}

// testHouse has two rooms; every device is registered in the returned registry.
func testHouse(t *testing.T) (*house.House, *house.Registry) {
	t.Helper()
	h := house.New("Home")
	reg := house.NewRegistry()

	for _, d := range []struct{ room, device, status string }{
		{"Bathroom", "Power Switch", `Power Switch (state: On, description: "Bathroom", power consumption: 60)`},
		{"Living Room", "Thermometer", "Thermometer (temperature: 21.75)"},
	} {
		h.AddRoom(d.room)
		if _, err := h.AddDevice(d.room, d.device); err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		reg.Register(d.room, d.device, staticStatus(d.status))
	}
	return h, reg
}

func newTestServer(t *testing.T, modify func(*Deps)) *Server {
	t.Helper()
	h, reg := testHouse(t)
	deps := Deps{
		Logger:   testLogger(),
		House:    h,
		Provider: reg,
		Version:  "test",
	}
	if modify != nil {
		modify(&deps)
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body %q is not JSON: %v", rec.Body.String(), err)
	}
	return e
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{House: house.New("x")}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without house should fail")
	}
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := newTestServer(t, func(d *Deps) {
			d.Checks = map[string]HealthChecker{"database": fakeCheck{}}
		})
		rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body healthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Status != "ok" || body.Version != "test" || body.Checks["database"] != "ok" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		srv := newTestServer(t, func(d *Deps) {
			d.Checks = map[string]HealthChecker{
				"database": fakeCheck{},
				"mqtt":     fakeCheck{err: errors.New("mqtt: client not connected")},
			}
		})
		rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		var body healthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Status != "degraded" || body.Checks["mqtt"] != "mqtt: client not connected" {
			t.Errorf("body = %+v", body)
		}
	})
}

func TestReport(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := `Power Switch (state: On, description: "Bathroom", power consumption: 60)` + "\n" +
		"Thermometer (temperature: 21.75)\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReport_DeviceNotFound(t *testing.T) {
	h, _ := testHouse(t)
	empty := house.NewRegistry()
	srv := newTestServer(t, func(d *Deps) {
		d.House = h
		d.Provider = empty
	})

	rec := do(t, srv, http.MethodGet, "/api/v1/report", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if e := decodeError(t, rec); e.Message != `Not found device "Power Switch" in room "Bathroom"` {
		t.Errorf("message = %q", e.Message)
	}
}

func TestReport_NotRoutedWithoutProvider(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) { d.Provider = nil })
	if rec := do(t, srv, http.MethodGet, "/api/v1/report", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRooms(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/rooms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body roomsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.House != "Home" || body.Count != 2 || body.Rooms[0].Name != "Bathroom" || body.Rooms[1].Name != "Living Room" {
		t.Errorf("body = %+v", body)
	}

	tests := []struct {
		path       string
		wantStatus int
		wantDevice string
	}{
		{"/api/v1/rooms/Living%20Room/devices", http.StatusOK, "Thermometer"},
		{"/api/v1/rooms/Bathroom/devices", http.StatusOK, "Power Switch"},
		{"/api/v1/rooms/Attic/devices", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantDevice == "" {
				return
			}
			var room house.RoomLayout
			if err := json.Unmarshal(rec.Body.Bytes(), &room); err != nil {
				t.Fatal(err)
			}
			if len(room.Devices) != 1 || room.Devices[0] != tt.wantDevice {
				t.Errorf("devices = %v, want [%s]", room.Devices, tt.wantDevice)
			}
		})
	}
}

func TestSwitchCommand(t *testing.T) {
	ok := &fakeSwitch{resp: powerswitch.PowerResponse(60)}
	down := &fakeSwitch{err: powerswitch.ErrConnectionFailed}
	srv := newTestServer(t, func(d *Deps) {
		d.Switches = map[string]SwitchCommander{"bathroom": ok, "garage": down}
	})

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"get power", "/api/v1/switches/bathroom/command", `{"command":"get_power"}`, http.StatusOK, ""},
		{"unknown switch", "/api/v1/switches/attic/command", `{"command":"turn_on"}`, http.StatusNotFound, ErrCodeNotFound},
		{"unknown command", "/api/v1/switches/bathroom/command", `{"command":"explode"}`, http.StatusBadRequest, ErrCodeUnknownCommand},
		{"bad json", "/api/v1/switches/bathroom/command", `{`, http.StatusBadRequest, ErrCodeBadRequest},
		{"unreachable", "/api/v1/switches/garage/command", `{"command":"turn_on"}`, http.StatusBadGateway, ErrCodeSwitchUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode == "" {
				return
			}
			e := decodeError(t, rec)
			if e.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
			}
			if e.RequestID == "" || e.RequestID != rec.Header().Get("X-Request-ID") {
				t.Errorf("request_id = %q, header %q", e.RequestID, rec.Header().Get("X-Request-ID"))
			}
		})
	}

	rec := do(t, srv, http.MethodPost, "/api/v1/switches/bathroom/command", `{"command":"get_power"}`)
	var body switchCommandResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Response != "Power" || body.Power == nil || *body.Power != 60 {
		t.Errorf("body = %+v", body)
	}
	if len(ok.got) != 2 || ok.got[0] != powerswitch.CommandGetPower {
		t.Errorf("commands sent = %v", ok.got)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "smarthouse_up 1\n")
		})
	})
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "smarthouse_up 1\n" {
		t.Errorf("GET /metrics = %d %q", rec.Code, rec.Body.String())
	}

	if rec := do(t, newTestServer(t, nil), http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without handler = %d, want 404", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})

	t.Run("request id is generated", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("X-Request-ID not set")
		}
	})

	t.Run("request id is propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.Header.Set("X-Request-ID", "abc")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); got != "abc" {
			t.Errorf("X-Request-ID = %q, want abc", got)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		for origin, allowed := range map[string]bool{"http://panel.local": true, "http://evil.example": false} {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/report", nil)
			req.Header.Set("Origin", origin)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusNoContent {
				t.Errorf("%s: status = %d, want 204", origin, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin") != ""; got != allowed {
				t.Errorf("%s: allow-origin set = %v, want %v", origin, got, allowed)
			}
		}
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		limited := newTestServer(t, func(d *Deps) {
			d.Switches = map[string]SwitchCommander{"bathroom": &fakeSwitch{}}
		})
		body := `{"command":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
		if rec := do(t, limited, http.MethodPost, "/api/v1/switches/bathroom/command", body); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("panic becomes 500", func(t *testing.T) {
		h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if e := decodeError(t, rec); e.Code != ErrCodeInternal {
			t.Errorf("code = %q", e.Code)
		}
	})
}

func TestStartClose(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) {
		d.Config = config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}}
	})

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := http.Get("http://" + srv.Addr().String() + "/api/v1/health"); err == nil {
		t.Error("server still answering after Close()")
	}
}

type memoryCommandLog struct {
	entries []audit.Entry
	err     error
}

func (m *memoryCommandLog) Record(_ context.Context, e *audit.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memoryCommandLog) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []audit.Entry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].DeviceID == f.DeviceID {
			out = append(out, m.entries[i])
		}
	}
	return &audit.ListResult{Entries: out, Total: len(out), Limit: f.Limit, Offset: f.Offset}, nil
}

func TestSwitchCommand_RecordsLog(t *testing.T) {
	log := &memoryCommandLog{}
	srv := newTestServer(t, func(d *Deps) {
		d.Switches = map[string]SwitchCommander{
			"bathroom": &fakeSwitch{resp: powerswitch.Response{Kind: powerswitch.ResponseOk}},
			"garage":   &fakeSwitch{err: powerswitch.ErrConnectionFailed},
		}
		d.CommandLog = log
	})

	do(t, srv, http.MethodPost, "/api/v1/switches/bathroom/command", `{"command":"turn_on"}`)
	do(t, srv, http.MethodPost, "/api/v1/switches/garage/command", `{"command":"turn_off"}`)
	do(t, srv, http.MethodPost, "/api/v1/switches/bathroom/command", `{"command":"explode"}`)

	if len(log.entries) != 2 {
		t.Fatalf("recorded %d entries, want 2: %+v", len(log.entries), log.entries)
	}
	if e := log.entries[0]; e.DeviceID != "bathroom" || e.Command != "turn_on" || e.Response != "Ok" || e.Source != audit.SourceAPI {
		t.Errorf("entries[0] = %+v", e)
	}
	if e := log.entries[1]; e.DeviceID != "garage" || e.Response != "" || e.Error == "" {
		t.Errorf("entries[1] = %+v", e)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantTotal  int
	}{
		{"history", "/api/v1/switches/bathroom/commands", http.StatusOK, 1},
		{"paged", "/api/v1/switches/garage/commands?limit=5&offset=0", http.StatusOK, 1},
		{"unknown switch", "/api/v1/switches/attic/commands", http.StatusNotFound, 0},
		{"bad limit", "/api/v1/switches/bathroom/commands?limit=many", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got audit.ListResult
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", got.Total, tt.wantTotal)
			}
		})
	}

	t.Run("list failure", func(t *testing.T) {
		log.err = errors.New("database is locked")
		if rec := do(t, srv, http.MethodGet, "/api/v1/switches/bathroom/commands", ""); rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestSwitchCommands_NotRoutedWithoutLog(t *testing.T) {
	srv := newTestServer(t, func(d *Deps) {
		d.Switches = map[string]SwitchCommander{"bathroom": &fakeSwitch{}}
	})
	rec := do(t, srv, http.MethodGet, "/api/v1/switches/bathroom/commands", "")
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 404 or 405", rec.Code)
	}
}
