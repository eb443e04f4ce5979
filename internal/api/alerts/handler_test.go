package alerts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tidewater-labs/plantpulse/internal/alerting"
	"github.com/tidewater-labs/plantpulse/internal/models"
)

// fakeService serves a fixed alert set and records lifecycle calls.
type fakeService struct {
	alerts     map[string]*models.Alert
	lastFilter models.AlertFilter
	ackCalls   []string
}

func (f *fakeService) List(filter models.AlertFilter) []*models.Alert {
	f.lastFilter = filter
	var out []*models.Alert
	for _, a := range f.alerts {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeService) Get(id string) (*models.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, alerting.ErrAlertNotFound
	}
	return a, nil
}

func (f *fakeService) Acknowledge(id, actor string) (*models.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, alerting.ErrAlertNotFound
	}
	if a.State == models.AlertResolved {
		return nil, alerting.ErrInvalidTransition
	}
	f.ackCalls = append(f.ackCalls, id+"/"+actor)
	a.State = models.AlertAcknowledged
	a.AcknowledgedBy = actor
	return a, nil
}

func (f *fakeService) Resolve(id, actor string) (*models.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, alerting.ErrAlertNotFound
	}
	if a.State == models.AlertResolved {
		return nil, alerting.ErrInvalidTransition
	}
	a.State = models.AlertResolved
	a.ResolvedBy = actor
	return a, nil
}

func testAlert(id string, severity models.Severity) *models.Alert {
	return &models.Alert{
		ID:              id,
		DeviceID:        "press-07",
		SensorType:      models.SensorTemperature,
		FactoryID:       "plant-a",
		Severity:        severity,
		State:           models.AlertOpen,
		Message:         "temperature out of band",
		OpenedAt:        time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		OccurrenceCount: 1,
	}
}

func newTestRouter(service Service) http.Handler {
	h := NewHandler(service, nil)
	r := chi.NewRouter()
	r.Get("/alerts", h.List)
	r.Get("/alerts/{id}", h.Get)
	r.Post("/alerts/{id}/acknowledge", h.Acknowledge)
	r.Post("/alerts/{id}/resolve", h.Resolve)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListAlerts(t *testing.T) {
	svc := &fakeService{alerts: map[string]*models.Alert{
		"a1": testAlert("a1", models.SeverityHigh),
		"a2": testAlert("a2", models.SeverityLow),
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/alerts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Data ListResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Total != 2 {
		t.Errorf("Total = %d, want 2", resp.Data.Total)
	}
}

func TestListAlertsFilters(t *testing.T) {
	svc := &fakeService{alerts: map[string]*models.Alert{
		"a1": testAlert("a1", models.SeverityHigh),
		"a2": testAlert("a2", models.SeverityLow),
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/alerts?severity=high&factory_id=plant-a&state=open", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if svc.lastFilter.FactoryID != "plant-a" || svc.lastFilter.State != models.AlertOpen {
		t.Errorf("filter = %+v", svc.lastFilter)
	}
	if svc.lastFilter.Severity == nil || *svc.lastFilter.Severity != models.SeverityHigh {
		t.Errorf("severity filter = %v", svc.lastFilter.Severity)
	}
}

func TestListAlertsBadFilters(t *testing.T) {
	router := newTestRouter(&fakeService{})

	if rec := doRequest(t, router, http.MethodGet, "/alerts?severity=noisy", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad severity: status = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/alerts?state=snoozed", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad state: status = %d, want 400", rec.Code)
	}
}

func TestGetAlert(t *testing.T) {
	ackAt := time.Date(2026, 3, 1, 8, 5, 0, 0, time.UTC)
	alert := testAlert("a1", models.SeverityHigh)
	alert.State = models.AlertAcknowledged
	alert.AcknowledgedAt = &ackAt
	alert.AcknowledgedBy = "alice"
	alert.NotificationStatus = map[models.Channel]models.JobStatus{
		models.ChannelEmail: models.JobSent,
	}
	svc := &fakeService{alerts: map[string]*models.Alert{"a1": alert}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/alerts/a1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Data AlertResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.State != "acknowledged" || resp.Data.AcknowledgedBy != "alice" {
		t.Errorf("data = %+v", resp.Data)
	}
	if resp.Data.AcknowledgedAt == "" {
		t.Error("AcknowledgedAt missing")
	}
	if resp.Data.NotificationStatus["email"] != "sent" {
		t.Errorf("NotificationStatus = %v", resp.Data.NotificationStatus)
	}
}

func TestGetAlertNotFound(t *testing.T) {
	router := newTestRouter(&fakeService{})

	rec := doRequest(t, router, http.MethodGet, "/alerts/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	svc := &fakeService{alerts: map[string]*models.Alert{
		"a1": testAlert("a1", models.SeverityHigh),
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/alerts/a1/acknowledge", `{"actor":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(svc.ackCalls) != 1 || svc.ackCalls[0] != "a1/alice" {
		t.Errorf("ackCalls = %v", svc.ackCalls)
	}
}

func TestAcknowledgeRequiresActor(t *testing.T) {
	svc := &fakeService{alerts: map[string]*models.Alert{
		"a1": testAlert("a1", models.SeverityHigh),
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/alerts/a1/acknowledge", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(svc.ackCalls) != 0 {
		t.Errorf("ackCalls = %v, want none", svc.ackCalls)
	}
}

func TestResolveAlert(t *testing.T) {
	svc := &fakeService{alerts: map[string]*models.Alert{
		"a1": testAlert("a1", models.SeverityHigh),
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/alerts/a1/resolve", `{"actor":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	// Terminal: a second resolve conflicts.
	rec = doRequest(t, router, http.MethodPost, "/alerts/a1/resolve", `{"actor":"alice"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second resolve status = %d, want 409", rec.Code)
	}
}
