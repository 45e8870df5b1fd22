package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"com.aviebrantz.smart-energy/pkg/auth"
	"com.aviebrantz.smart-energy/pkg/config"
	"com.aviebrantz.smart-energy/pkg/core/store/devices"
	"com.aviebrantz.smart-energy/pkg/core/store/historical"
	"com.aviebrantz.smart-energy/pkg/dashboard"
	"com.aviebrantz.smart-energy/pkg/geo"
	"com.aviebrantz.smart-energy/pkg/homegraph"
	"com.aviebrantz.smart-energy/pkg/location"
	"com.aviebrantz.smart-energy/pkg/notice"
	"com.aviebrantz.smart-energy/pkg/presence"
	"github.com/gofiber/fiber"
	"gocloud.dev/docstore/memdocstore"
)

type fakeAPI struct {
	mu       sync.Mutex
	commands []homegraph.CommandRequest
	reports  []homegraph.ReportRequest
	err      error
}

func (f *fakeAPI) ExecuteCommand(_ context.Context, req homegraph.CommandRequest) (homegraph.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, req)
	if f.err != nil {
		return nil, f.err
	}
	return homegraph.Response{"status": "SUCCESS"}, nil
}

func (f *fakeAPI) ReportState(_ context.Context, req homegraph.ReportRequest) (homegraph.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, req)
	if f.err != nil {
		return nil, f.err
	}
	return homegraph.Response{"requestId": req.RequestID}, nil
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, time.Time, float64) error { return nil }

// trackerSink skips the pubsub hop and feeds samples straight to the tracker.
type trackerSink struct {
	tracker *location.Tracker
	samples []location.Sample
}

func (s *trackerSink) Publish(_ context.Context, sample location.Sample) error {
	s.samples = append(s.samples, sample)
	s.tracker.Update(sample)
	return nil
}

type fixture struct {
	app     *fiber.App
	api     *fakeAPI
	sink    *trackerSink
	board   *notice.Board
	session *auth.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()

	devicesColl, err := memdocstore.OpenCollection("deviceID", nil)
	if err != nil {
		t.Fatalf("could not open devices collection: %v", err)
	}
	t.Cleanup(func() { devicesColl.Close() })
	usageColl, err := memdocstore.OpenCollection("id", nil)
	if err != nil {
		t.Fatalf("could not open usage collection: %v", err)
	}
	t.Cleanup(func() { usageColl.Close() })
	usageStore := historical.NewHistoricalDocStore(usageColl)

	fake := &fakeAPI{}
	board := notice.NewBoard(20)
	session := auth.NewSession()
	controller := dashboard.NewController(devices.NewDeviceDocStore(devicesColl), fake, nopRecorder{}, board, cfg.HomeGraphConfig.AgentUserID)
	if err := controller.Seed(ctx, cfg.Devices); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	chart := dashboard.NewUsageChart(usageStore, controller)
	if err := chart.Seed(ctx, cfg.UsageConfig.Seed, time.Now()); err != nil {
		t.Fatalf("usage Seed() failed: %v", err)
	}

	tracker := location.NewTracker()
	gate := presence.NewGate(cfg.HomeConfig, cfg.HomeGraphConfig.AgentUserID, controller)
	sink := &trackerSink{tracker: tracker}

	server := NewServer(Services{
		Controller:    controller,
		Usage:         chart,
		History:       usageStore,
		Authenticator: auth.NewAuthenticator(cfg.OAuthConfig, session, board),
		Session:       session,
		Gate:          gate,
		Monitor:       presence.NewMonitor(gate, tracker, board),
		Tracker:       tracker,
		Samples:       sink,
		Notices:       board,
	}, cfg.APIServerConfig, cfg.UsageConfig)

	return &fixture{app: server.routes(), api: fake, sink: sink, board: board, session: session}
}

func (f *fixture) do(t *testing.T, method, target, contentType string, body []byte) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, target, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response: %v", err)
	}
	return resp, data
}

func decode(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("could not decode %s: %v", data, err)
	}
}

func TestGetDevices(t *testing.T) {
	f := newFixture(t)
	resp, data := f.do(t, http.MethodGet, "/devices", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var list []devices.Device
	decode(t, data, &list)
	if len(list) != 3 || list[0].ID != "demo-device-1" || !list[0].On || list[1].On {
		t.Fatalf("devices = %+v", list)
	}
}

func TestToggleDevice(t *testing.T) {
	f := newFixture(t)
	resp, data := f.do(t, http.MethodPost, "/devices/demo-device-3/toggle", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
	var body struct {
		Device   devices.Device     `json:"device"`
		Response homegraph.Response `json:"response"`
	}
	decode(t, data, &body)
	if body.Device.On || body.Response["status"] != "SUCCESS" {
		t.Fatalf("body = %+v", body)
	}
	if len(f.api.commands) != 1 || f.api.commands[0].DeviceID != "demo-device-3" || f.api.commands[0].On {
		t.Fatalf("commands = %+v", f.api.commands)
	}
}

func TestToggleErrorStatus(t *testing.T) {
	cases := map[string]struct {
		err    error
		id     string
		status int
	}{
		"unauthenticated": {err: auth.ErrUnauthenticated, id: "demo-device-1", status: fiber.StatusUnauthorized},
		"unknown device":  {id: "nope", status: fiber.StatusNotFound},
		"transport": {
			err:    &homegraph.TransportError{Op: "execute", StatusCode: 403, Payload: homegraph.Response{"error": "denied"}, Err: errors.New("Forbidden")},
			id:     "demo-device-1",
			status: fiber.StatusBadGateway,
		},
		"other": {err: errors.New("boom"), id: "demo-device-1", status: fiber.StatusInternalServerError},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.api.err = tc.err
			resp, data := f.do(t, http.MethodPost, "/devices/"+tc.id+"/toggle", "", nil)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tc.status, data)
			}
			if tc.status == fiber.StatusBadGateway {
				var body struct {
					Payload map[string]interface{} `json:"payload"`
				}
				decode(t, data, &body)
				if body.Payload["error"] != "denied" {
					t.Fatalf("payload = %v", body.Payload)
				}
			}
		})
	}
}

func TestReportDevice(t *testing.T) {
	f := newFixture(t)
	resp, data := f.do(t, http.MethodPost, "/devices/demo-device-1/report", "application/json", []byte(`{"currentEnergyUse":7.5}`))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
	if len(f.api.reports) != 1 || f.api.reports[0].CurrentEnergyUse != 7.5 {
		t.Fatalf("reports = %+v", f.api.reports)
	}

	resp, _ = f.do(t, http.MethodPost, "/devices/demo-device-1/report", "", nil)
	if resp.StatusCode != fiber.StatusOK || f.api.reports[1].CurrentEnergyUse != 10 {
		t.Fatalf("report without body: status %d, reports %+v", resp.StatusCode, f.api.reports)
	}

	resp, _ = f.do(t, http.MethodPost, "/devices/demo-device-1/report", "application/json", []byte(`{`))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLoginFlowCancelled(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/auth/login", "", nil)
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil || loc.Host != "accounts.google.com" {
		t.Fatalf("Location = %q", resp.Header.Get("Location"))
	}
	state := loc.Query().Get("state")

	resp, data := f.do(t, http.MethodGet, "/auth/callback?state="+url.QueryEscape(state)+"&error=access_denied", "", nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
	var body map[string]interface{}
	decode(t, data, &body)
	if body["outcome"] != "cancelled" {
		t.Fatalf("body = %v", body)
	}

	_, data = f.do(t, http.MethodGet, "/auth/session", "", nil)
	decode(t, data, &body)
	if body["state"] != string(auth.StateLoginCancelled) || body["authenticated"] != false {
		t.Fatalf("session = %v", body)
	}
}

func TestCallbackUnknownState(t *testing.T) {
	f := newFixture(t)
	resp, data := f.do(t, http.MethodGet, "/auth/callback?state=forged&code=abc", "", nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decode(t, data, &body)
	if body["outcome"] != "failed" {
		t.Fatalf("body = %v", body)
	}
	if state, _ := f.session.State(); state != auth.StateLoginFailed {
		t.Fatalf("session state = %s", state)
	}
}

func TestPostLocation(t *testing.T) {
	f := newFixture(t)
	resp, data := f.do(t, http.MethodPost, "/presence/location", "application/json", []byte(`{"latitude":17.4,"longitude":78.5}`))
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}

	cborBody, err := location.Encode(location.FormatCBOR, location.Sample{Coordinate: geo.Coordinate{Latitude: 1, Longitude: 2}})
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	resp, _ = f.do(t, http.MethodPost, "/presence/location", "application/cbor", cborBody)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("cbor status = %d", resp.StatusCode)
	}
	if len(f.sink.samples) != 2 || f.sink.samples[1].Coordinate.Longitude != 2 {
		t.Fatalf("samples = %+v", f.sink.samples)
	}

	resp, _ = f.do(t, http.MethodPost, "/presence/location", "application/json", []byte(`{"latitude":1}`))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPresenceCheck(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/presence/check", "", nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("check without fix = %d, want 409", resp.StatusCode)
	}

	// Roughly 1.1 km north of the default home.
	f.do(t, http.MethodPost, "/presence/location", "application/json", []byte(`{"latitude":17.395044,"longitude":78.486671}`))
	resp, data := f.do(t, http.MethodPost, "/presence/check", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
	var reading presence.Reading
	decode(t, data, &reading)
	if !reading.Triggered || reading.Meters < 1000 {
		t.Fatalf("reading = %+v", reading)
	}
	if len(f.api.commands) != 1 || f.api.commands[0].DeviceID != "demo-device-2" || f.api.commands[0].On {
		t.Fatalf("commands = %+v", f.api.commands)
	}

	_, data = f.do(t, http.MethodGet, "/presence", "", nil)
	var state map[string]interface{}
	decode(t, data, &state)
	if state["permission"] != string(location.PermissionGranted) || state["reading"] == nil || state["threshold"] != 500.0 {
		t.Fatalf("presence = %v", state)
	}
}

func TestPermissionDenied(t *testing.T) {
	f := newFixture(t)
	resp, data := f.do(t, http.MethodPost, "/presence/permission", "application/json", []byte(`{"granted":false}`))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}

	resp, _ = f.do(t, http.MethodPost, "/presence/check", "", nil)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if len(f.api.commands) != 0 {
		t.Fatalf("command issued without permission")
	}

	_, data = f.do(t, http.MethodGet, "/notices", "", nil)
	var notices []notice.Notice
	decode(t, data, &notices)
	if len(notices) != 1 || notices[0].Title != "Permission denied for location" {
		t.Fatalf("notices = %+v", notices)
	}

	resp, _ = f.do(t, http.MethodPost, "/presence/permission", "application/json", []byte(`{}`))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetUsage(t *testing.T) {
	f := newFixture(t)
	resp, data := f.do(t, http.MethodGet, "/usage", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var bars []dashboard.Bar
	decode(t, data, &bars)
	if len(bars) != 5 || bars[2].Value != 60 || bars[2].Height != 1 {
		t.Fatalf("bars = %+v", bars)
	}

	_, data = f.do(t, http.MethodGet, "/usage?days=2", "", nil)
	decode(t, data, &bars)
	if len(bars) != 2 || bars[1].Label != "Day 2" {
		t.Fatalf("bars = %+v", bars)
	}

	for _, days := range []string{"abc", "-1", "366", "1099511627776"} {
		resp, _ = f.do(t, http.MethodGet, "/usage?days="+days, "", nil)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("days=%s: status = %d, want 400", days, resp.StatusCode)
		}
	}

	_, data = f.do(t, http.MethodGet, "/usage?days=365", "", nil)
	decode(t, data, &bars)
	if len(bars) != 365 || bars[364].Value != 55 {
		t.Fatalf("got %d bars", len(bars))
	}
}
