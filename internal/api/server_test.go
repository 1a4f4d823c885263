package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hearth-core/internal/infrastructure/config"
	"github.com/nerrad567/hearth-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/hearth-core/internal/infrastructure/logging"
	"github.com/nerrad567/hearth-core/internal/zone"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type memRepo struct {
	mu   sync.Mutex
	snap *zone.Snapshot
}

func (m *memRepo) Save(_ context.Context, snap *zone.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.DeepCopy()
	return nil
}

func (m *memRepo) Load(_ context.Context) (*zone.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	return m.snap.DeepCopy(), nil
}

type mockRefresher struct {
	mu    sync.Mutex
	calls int
}

func (m *mockRefresher) RequestRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

func (m *mockRefresher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type stubHistory struct {
	points []influxdb.TemperaturePoint
	err    error
}

func (s *stubHistory) QueryZoneTemperatures(_ context.Context, _ string, _ time.Time, _ time.Duration) ([]influxdb.TemperaturePoint, error) {
	return s.points, s.err
}

// ─── Test Harness ───────────────────────────────────────────────────────────

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func testServer(t *testing.T, opts ...func(*Deps)) (*Server, *zone.Registry, *mockRefresher) {
	t.Helper()

	reg := zone.NewRegistry(&memRepo{})
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("loading registry: %v", err)
	}

	refresher := &mockRefresher{}
	deps := Deps{
		Logger:   testLogger(),
		Registry: reg,
		Control:  refresher,
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	s, err := New(deps)
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	return s, reg, refresher
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func createTestZone(t *testing.T, reg *zone.Registry, name string) *zone.Zone {
	t.Helper()
	z, err := reg.Create(context.Background(), &zone.Zone{Name: name})
	if err != nil {
		t.Fatalf("creating zone: %v", err)
	}
	return z
}

// ─── Health ─────────────────────────────────────────────────────────────────

func TestHandleHealth(t *testing.T) {
	s, reg, _ := testServer(t)
	createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("unexpected health body: %v", body)
	}
	if body["zones"] != float64(1) {
		t.Errorf("zones = %v, want 1", body["zones"])
	}
}

// ─── Zone CRUD ──────────────────────────────────────────────────────────────

func TestCreateAndListZones(t *testing.T) {
	s, _, refresher := testServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/zones", map[string]any{
		"name":        "Living Room",
		"base_target": 21.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created zoneResponse
	decodeBody(t, rec, &created)
	if created.ID == "" {
		t.Error("created zone has no generated ID")
	}
	if created.Name != "Living Room" || created.BaseTarget != 21.0 {
		t.Errorf("created = %s @ %.1f, want Living Room @ 21.0", created.Name, created.BaseTarget)
	}
	if !created.Enabled {
		t.Error("new zones must start enabled")
	}
	if refresher.count() == 0 {
		t.Error("zone creation did not nudge the control loop")
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/zones", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list struct {
		Count int            `json:"count"`
		Zones []zoneResponse `json:"zones"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 || len(list.Zones) != 1 {
		t.Fatalf("count = %d, zones = %d, want 1 each", list.Count, len(list.Zones))
	}
}

func TestCreateZoneValidation(t *testing.T) {
	s, _, _ := testServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing name", map[string]any{"base_target": 21.0}, http.StatusBadRequest},
		{"invalid json", "not json", http.StatusBadRequest},
		{"base target too low", map[string]any{"name": "X", "base_target": 2.0}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if raw, ok := tt.body.(string); ok {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/zones", bytes.NewBufferString(raw))
				rec = httptest.NewRecorder()
				s.buildRouter().ServeHTTP(rec, req)
			} else {
				rec = doRequest(t, s, http.MethodPost, "/api/v1/zones", tt.body)
			}
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestGetZone(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodGet, "/api/v1/zones/"+z.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got zoneResponse
	decodeBody(t, rec, &got)
	if got.ID != z.ID || got.Name != "Hall" {
		t.Errorf("got %s/%s, want %s/Hall", got.ID, got.Name, z.ID)
	}
	if got.State != zone.HeatingStateOff {
		t.Errorf("state = %q, want %q", got.State, zone.HeatingStateOff)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/zones/no-such-zone", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing zone status = %d, want 404", rec.Code)
	}
}

func TestUpdateZonePatch(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodPatch, "/api/v1/zones/"+z.ID, map[string]any{
		"name":        "Hallway",
		"base_target": 19.5,
		"night_boost": map[string]any{
			"enabled": true,
			"offset":  0.5,
			"start":   "22:00",
			"end":     "06:00",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got zoneResponse
	decodeBody(t, rec, &got)
	if got.Name != "Hallway" || got.BaseTarget != 19.5 {
		t.Errorf("patched to %s @ %.1f, want Hallway @ 19.5", got.Name, got.BaseTarget)
	}
	if !got.NightBoost.Enabled || got.NightBoost.Start != "22:00" {
		t.Errorf("night boost not applied: %+v", got.NightBoost)
	}

	rec = doRequest(t, s, http.MethodPatch, "/api/v1/zones/"+z.ID, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty patch status = %d, want 400", rec.Code)
	}
}

func TestDeleteZone(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodDelete, "/api/v1/zones/"+z.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	if _, err := reg.Get(z.ID); err == nil {
		t.Error("zone still present after delete")
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/zones/"+z.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", rec.Code)
	}
}

// ─── Heating Actions ────────────────────────────────────────────────────────

func TestSetTarget(t *testing.T) {
	s, reg, refresher := testServer(t)
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodPut, "/api/v1/zones/"+z.ID+"/target", map[string]any{
		"temperature": 22.5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got zoneResponse
	decodeBody(t, rec, &got)
	if got.BaseTarget != 22.5 {
		t.Errorf("base target = %.1f, want 22.5", got.BaseTarget)
	}
	if refresher.count() == 0 {
		t.Error("target change did not nudge the control loop")
	}
}

func TestSetEnabledAndMode(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodPut, "/api/v1/zones/"+z.ID+"/enabled", map[string]any{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("enabled status = %d, want 200", rec.Code)
	}
	var got zoneResponse
	decodeBody(t, rec, &got)
	if got.Enabled {
		t.Error("zone should be disabled")
	}

	rec = doRequest(t, s, http.MethodPut, "/api/v1/zones/"+z.ID+"/mode", map[string]any{"mode": "off"})
	if rec.Code != http.StatusOK {
		t.Fatalf("mode status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPut, "/api/v1/zones/"+z.ID+"/mode", map[string]any{"mode": "tumble_dry"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid mode status = %d, want 400", rec.Code)
	}
}

func TestSetPreset(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodPut, "/api/v1/zones/"+z.ID+"/preset", map[string]any{"preset": "eco"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got zoneResponse
	decodeBody(t, rec, &got)
	if got.PresetMode != zone.PresetEco {
		t.Errorf("preset = %q, want eco", got.PresetMode)
	}

	rec = doRequest(t, s, http.MethodPut, "/api/v1/zones/"+z.ID+"/preset", map[string]any{"preset": "sauna"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid preset status = %d, want 400", rec.Code)
	}
}

func TestBoostLifecycle(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	// Empty body takes the defaults.
	rec := doRequest(t, s, http.MethodPost, "/api/v1/zones/"+z.ID+"/boost", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("boost status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got zoneResponse
	decodeBody(t, rec, &got)
	if !got.Boost.Active || got.Boost.Temperature != zone.DefaultBoostTemp {
		t.Errorf("boost = %+v, want active at default temp", got.Boost)
	}
	if got.Boost.DurationMin != zone.DefaultBoostDurationMin {
		t.Errorf("duration = %d, want %d", got.Boost.DurationMin, zone.DefaultBoostDurationMin)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/zones/"+z.ID+"/boost", map[string]any{
		"temperature":  23.0,
		"duration_min": 30,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("boost status = %d, want 200", rec.Code)
	}
	decodeBody(t, rec, &got)
	if got.Boost.Temperature != 23.0 || got.Boost.DurationMin != 30 {
		t.Errorf("boost = %+v, want 23.0 for 30min", got.Boost)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/zones/"+z.ID+"/boost", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", rec.Code)
	}
	decodeBody(t, rec, &got)
	if got.Boost.Active {
		t.Error("boost still active after cancel")
	}
}

func TestClearOverride(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	adopted := 23.5
	if _, err := reg.SetManualOverride(context.Background(), z.ID, true, &adopted); err != nil {
		t.Fatalf("setting override: %v", err)
	}

	rec := doRequest(t, s, http.MethodDelete, "/api/v1/zones/"+z.ID+"/override", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got zoneResponse
	decodeBody(t, rec, &got)
	if got.ManualOverride {
		t.Error("manual override still set after clear")
	}
	if got.BaseTarget != 23.5 {
		t.Errorf("base target = %.1f, want the adopted 23.5 retained", got.BaseTarget)
	}
}

// ─── Schedules ──────────────────────────────────────────────────────────────

func TestScheduleCRUD(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/zones/"+z.ID+"/schedules", map[string]any{
		"day_of_week": 1,
		"start":       "06:30",
		"end":         "08:30",
		"enabled":     true,
		"temperature": 21.0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created zoneResponse
	decodeBody(t, rec, &created)
	if len(created.Schedules) != 1 {
		t.Fatalf("schedules = %d, want 1", len(created.Schedules))
	}
	var schedID string
	for id := range created.Schedules {
		schedID = id
	}
	if schedID == "" {
		t.Fatal("schedule has no generated ID")
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/zones/"+z.ID+"/schedules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list struct {
		Count     int             `json:"count"`
		Schedules []zone.Schedule `json:"schedules"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 || list.Schedules[0].Start != "06:30" {
		t.Errorf("list = %+v, want one schedule starting 06:30", list)
	}

	rec = doRequest(t, s, http.MethodPut,
		fmt.Sprintf("/api/v1/zones/%s/schedules/%s", z.ID, schedID), map[string]any{
			"day_of_week": 1,
			"start":       "07:00",
			"end":         "09:00",
			"enabled":     true,
			"temperature": 20.0,
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var updated zoneResponse
	decodeBody(t, rec, &updated)
	if updated.Schedules[schedID].Start != "07:00" {
		t.Errorf("start = %s, want 07:00", updated.Schedules[schedID].Start)
	}

	rec = doRequest(t, s, http.MethodDelete,
		fmt.Sprintf("/api/v1/zones/%s/schedules/%s", z.ID, schedID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete,
		fmt.Sprintf("/api/v1/zones/%s/schedules/%s", z.ID, schedID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", rec.Code)
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad clock", map[string]any{"day_of_week": 1, "start": "25:00", "end": "08:00", "temperature": 21.0}},
		{"no target", map[string]any{"day_of_week": 1, "start": "06:00", "end": "08:00"}},
		{"both targets", map[string]any{"day_of_week": 1, "start": "06:00", "end": "08:00", "temperature": 21.0, "preset": "eco"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/v1/zones/"+z.ID+"/schedules", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

// ─── Devices ────────────────────────────────────────────────────────────────

func TestDeviceAddRemove(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodPost, "/api/v1/zones/"+z.ID+"/devices", map[string]any{
		"entity_id": "climate.hall",
		"type":      "thermostat",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var got zoneResponse
	decodeBody(t, rec, &got)
	if _, ok := got.Devices["climate.hall"]; !ok {
		t.Error("device not present after add")
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/zones/"+z.ID+"/devices/climate.hall", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, want 204", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/zones/"+z.ID+"/devices/climate.hall", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double remove status = %d, want 404", rec.Code)
	}
}

// ─── Global Config ──────────────────────────────────────────────────────────

func TestGlobalConfigRoundTrip(t *testing.T) {
	s, _, refresher := testServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var cfg zone.GlobalConfig
	decodeBody(t, rec, &cfg)
	if cfg.Hysteresis != zone.DefaultHysteresis {
		t.Errorf("hysteresis = %.2f, want default %.2f", cfg.Hysteresis, zone.DefaultHysteresis)
	}

	cfg.Hysteresis = 0.8
	cfg.HeatSourceID = "climate.boiler"
	cfg.HeatSourceEnabled = true
	rec = doRequest(t, s, http.MethodPut, "/api/v1/config", cfg)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var updated zone.GlobalConfig
	decodeBody(t, rec, &updated)
	if updated.Hysteresis != 0.8 || updated.HeatSourceID != "climate.boiler" {
		t.Errorf("updated = %+v", updated)
	}
	if refresher.count() == 0 {
		t.Error("config change did not nudge the control loop")
	}

	cfg.Hysteresis = 0
	rec = doRequest(t, s, http.MethodPut, "/api/v1/config", cfg)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero hysteresis status = %d, want 400", rec.Code)
	}
}

// ─── History ────────────────────────────────────────────────────────────────

func TestZoneHistory(t *testing.T) {
	now := time.Now().UTC()
	cur, tgt := 19.4, 21.0
	history := &stubHistory{points: []influxdb.TemperaturePoint{
		{Time: now.Add(-10 * time.Minute), Current: &cur, Target: &tgt},
		{Time: now.Add(-5 * time.Minute), Current: &cur, Target: &tgt},
	}}

	s, reg, _ := testServer(t, func(d *Deps) { d.History = history })
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodGet, "/api/v1/zones/"+z.ID+"/history?hours=6&step=300", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		ZoneID string                      `json:"zone_id"`
		Count  int                         `json:"count"`
		Points []influxdb.TemperaturePoint `json:"points"`
	}
	decodeBody(t, rec, &body)
	if body.ZoneID != z.ID || body.Count != 2 {
		t.Errorf("zone_id = %s count = %d, want %s/2", body.ZoneID, body.Count, z.ID)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/zones/"+z.ID+"/history?hours=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid hours status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/zones/no-such/history", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing zone status = %d, want 404", rec.Code)
	}
}

func TestZoneHistoryWithoutBackend(t *testing.T) {
	s, reg, _ := testServer(t)
	z := createTestZone(t, reg, "Hall")

	rec := doRequest(t, s, http.MethodGet, "/api/v1/zones/"+z.ID+"/history", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
