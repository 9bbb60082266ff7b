package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/graph"
	"github.com/prayatna/fraudscreen/backend/pkg/store/memory"

	"github.com/labstack/echo/v4"
)

// newNetworkApp seeds a record registry with a phone-sharing trio, as if
// another process had screened the documents. The graph cache starts cold.
func newNetworkApp(t *testing.T) *middleware.App {
	t.Helper()

	records := memory.NewRecordStore()
	for _, r := range []common.BeneficiaryRecord{
		{BeneficiaryID: "BEN_A", PhoneNumber: "PH_SHARED"},
		{BeneficiaryID: "BEN_B", PhoneNumber: "PH_SHARED"},
		{BeneficiaryID: "BEN_C", PhoneNumber: "PH_SHARED"},
	} {
		if err := records.SaveRecord(context.Background(), r); err != nil {
			t.Fatalf("SaveRecord() error = %v", err)
		}
	}

	return &middleware.App{
		Cases:      memory.NewCaseStore(),
		Records:    records,
		GraphCache: graph.NewCache(graph.NewCacheParams{MinRingSize: 3, Capacity: 2}),
	}
}

func invokeGet(t *testing.T, app *middleware.App, handler echo.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	ac := &middleware.AppContext{Context: e.NewContext(req, rec), App: app}
	if err := handler(ac); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestGetDashboardHandler_BuildsFromRegistry(t *testing.T) {
	app := newNetworkApp(t)

	rec := invokeGet(t, app, GetDashboardHandler, "/api/dashboard")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Stats struct {
			RingCount   int `json:"ring_count"`
			RingMembers int `json:"ring_members"`
			RiskBuckets struct {
				Medium int `json:"medium"`
			} `json:"risk_buckets"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}

	if body.Stats.RingCount != 1 {
		t.Errorf("RingCount = %d, want 1", body.Stats.RingCount)
	}
	if body.Stats.RingMembers != 3 {
		t.Errorf("RingMembers = %d, want 3", body.Stats.RingMembers)
	}
	if body.Stats.RiskBuckets.Medium != 3 {
		t.Errorf("Medium bucket = %d, want 3", body.Stats.RiskBuckets.Medium)
	}
	if app.GraphCache.Len() != 1 {
		t.Fatalf("expected the built snapshot to be cached, got %d entries", app.GraphCache.Len())
	}
}

func TestGetNetworkRingsHandler_BuildsFromRegistry(t *testing.T) {
	app := newNetworkApp(t)

	rec := invokeGet(t, app, GetNetworkRingsHandler, "/api/network/rings")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Fingerprint string             `json:"fingerprint"`
		Rings       []common.FraudRing `json:"rings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}

	if len(body.Rings) != 1 {
		t.Fatalf("rings = %d, want 1", len(body.Rings))
	}
	if len(body.Rings[0].Members) != 3 {
		t.Errorf("ring members = %d, want 3", len(body.Rings[0].Members))
	}
	if body.Fingerprint == "" {
		t.Error("expected a snapshot fingerprint")
	}
}

func TestGetNetworkRingsHandler_EmptyRegistry(t *testing.T) {
	app := &middleware.App{
		Cases:      memory.NewCaseStore(),
		Records:    memory.NewRecordStore(),
		GraphCache: graph.NewCache(graph.NewCacheParams{MinRingSize: 3, Capacity: 2}),
	}

	rec := invokeGet(t, app, GetNetworkRingsHandler, "/api/network/rings")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Rings []common.FraudRing `json:"rings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(body.Rings) != 0 {
		t.Fatalf("rings = %d, want none for an empty registry", len(body.Rings))
	}
}
