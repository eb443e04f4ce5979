package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tidewater-labs/plantpulse/internal/models"
	"github.com/tidewater-labs/plantpulse/internal/notifier"
)

type fakeService struct {
	jobs     map[string]*models.NotificationJob
	outcomes map[string]models.JobStatus
}

func (f *fakeService) Job(jobID string) (*models.NotificationJob, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, notifier.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeService) Jobs(alertID string) []*models.NotificationJob {
	var out []*models.NotificationJob
	for _, j := range f.jobs {
		if j.AlertID == alertID {
			out = append(out, j)
		}
	}
	return out
}

func (f *fakeService) ReportOutcome(jobID string, status models.JobStatus) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return notifier.ErrJobNotFound
	}
	if f.outcomes == nil {
		f.outcomes = make(map[string]models.JobStatus)
	}
	f.outcomes[jobID] = status
	j.Status = status
	return nil
}

func testJob(id, alertID string) *models.NotificationJob {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return &models.NotificationJob{
		ID:        id,
		AlertID:   alertID,
		Event:     models.EventOpened,
		Channel:   models.ChannelEmail,
		Recipient: "ops@example.com",
		Body:      "temperature out of band",
		Status:    models.JobPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newTestRouter(service Service) http.Handler {
	h := NewHandler(service, nil)
	r := chi.NewRouter()
	r.Get("/notifications", h.List)
	r.Get("/notifications/{job_id}", h.Get)
	r.Post("/notifications/{job_id}/outcome", h.ReportOutcome)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListJobsByAlert(t *testing.T) {
	svc := &fakeService{jobs: map[string]*models.NotificationJob{
		"j1": testJob("j1", "a1"),
		"j2": testJob("j2", "a1"),
		"j3": testJob("j3", "a2"),
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/notifications?alert_id=a1", "")
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

func TestListRequiresAlertID(t *testing.T) {
	router := newTestRouter(&fakeService{})

	rec := doRequest(t, router, http.MethodGet, "/notifications", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetJob(t *testing.T) {
	job := testJob("j1", "a1")
	job.Status = models.JobFailed
	job.Attempts = 2
	job.LastError = "gateway unavailable"
	job.NextAttemptAt = job.CreatedAt.Add(time.Minute)
	svc := &fakeService{jobs: map[string]*models.NotificationJob{"j1": job}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/notifications/j1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Data JobResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Status != "failed" || resp.Data.Attempts != 2 || resp.Data.NextAttemptAt == "" {
		t.Errorf("data = %+v", resp.Data)
	}
}

func TestGetJobNotFound(t *testing.T) {
	router := newTestRouter(&fakeService{})

	rec := doRequest(t, router, http.MethodGet, "/notifications/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestReportOutcome(t *testing.T) {
	svc := &fakeService{jobs: map[string]*models.NotificationJob{
		"j1": testJob("j1", "a1"),
	}}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/notifications/j1/outcome", `{"status":"sent"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if svc.outcomes["j1"] != models.JobSent {
		t.Errorf("outcome = %s, want sent", svc.outcomes["j1"])
	}

	var resp struct {
		Data JobResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Status != "sent" {
		t.Errorf("Status = %s, want sent (refreshed job)", resp.Data.Status)
	}
}

func TestReportOutcomeRejectsNonOutcomeStatus(t *testing.T) {
	svc := &fakeService{jobs: map[string]*models.NotificationJob{
		"j1": testJob("j1", "a1"),
	}}
	router := newTestRouter(svc)

	for _, status := range []string{"pending", "cancelled", "exhausted", "bogus"} {
		rec := doRequest(t, router, http.MethodPost, "/notifications/j1/outcome", `{"status":"`+status+`"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", status, rec.Code)
		}
	}
	if len(svc.outcomes) != 0 {
		t.Errorf("outcomes recorded for invalid statuses: %v", svc.outcomes)
	}
}

func TestReportOutcomeUnknownJob(t *testing.T) {
	router := newTestRouter(&fakeService{})

	rec := doRequest(t, router, http.MethodPost, "/notifications/missing/outcome", `{"status":"sent"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
