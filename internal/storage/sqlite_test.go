package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

func openTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func testAlert(id string) *models.Alert {
	return &models.Alert{
		ID:              id,
		DeviceID:        "press-07",
		SensorType:      models.SensorTemperature,
		FactoryID:       "plant-a",
		Severity:        models.SeverityHigh,
		State:           models.AlertOpen,
		Message:         "temperature out of band",
		OpenedAt:        time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		LastNotifiedAt:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		OccurrenceCount: 2,
		Version:         3,
	}
}

func TestAlertRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	ackAt := time.Date(2026, 3, 1, 8, 5, 0, 0, time.UTC)
	alert := testAlert("a1")
	alert.State = models.AlertAcknowledged
	alert.AcknowledgedAt = &ackAt
	alert.AcknowledgedBy = "alice"
	alert.NotificationStatus = map[models.Channel]models.JobStatus{
		models.ChannelEmail: models.JobSent,
		models.ChannelSMS:   models.JobFailed,
	}

	if err := s.Alerts().Save(ctx, alert); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Alerts().GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.DeviceID != alert.DeviceID || got.SensorType != alert.SensorType ||
		got.Severity != alert.Severity || got.State != alert.State {
		t.Errorf("got %+v", got)
	}
	if !got.OpenedAt.Equal(alert.OpenedAt) {
		t.Errorf("OpenedAt = %v, want %v", got.OpenedAt, alert.OpenedAt)
	}
	if got.AcknowledgedAt == nil || !got.AcknowledgedAt.Equal(ackAt) {
		t.Errorf("AcknowledgedAt = %v, want %v", got.AcknowledgedAt, ackAt)
	}
	if got.ResolvedAt != nil {
		t.Errorf("ResolvedAt = %v, want nil", got.ResolvedAt)
	}
	if got.NotificationStatus[models.ChannelEmail] != models.JobSent ||
		got.NotificationStatus[models.ChannelSMS] != models.JobFailed {
		t.Errorf("NotificationStatus = %+v", got.NotificationStatus)
	}
	if got.OccurrenceCount != 2 || got.Version != 3 {
		t.Errorf("counters = %d/%d, want 2/3", got.OccurrenceCount, got.Version)
	}
}

func TestAlertSaveIsUpsert(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	alert := testAlert("a1")
	if err := s.Alerts().Save(ctx, alert); err != nil {
		t.Fatalf("Save: %v", err)
	}
	alert.Severity = models.SeverityCritical
	alert.Version = 4
	if err := s.Alerts().Save(ctx, alert); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := s.Alerts().GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Severity != models.SeverityCritical || got.Version != 4 {
		t.Errorf("got %s v%d, want critical v4", got.Severity, got.Version)
	}
}

func TestAlertGetNotFound(t *testing.T) {
	s := openTestStorage(t)

	if _, err := s.Alerts().GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAlertListFilters(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	a1 := testAlert("a1")
	a2 := testAlert("a2")
	a2.FactoryID = "plant-b"
	a2.Severity = models.SeverityCritical
	a2.OpenedAt = a1.OpenedAt.Add(time.Hour)
	resolvedAt := a1.OpenedAt.Add(2 * time.Hour)
	a3 := testAlert("a3")
	a3.State = models.AlertResolved
	a3.ResolvedAt = &resolvedAt
	a3.ResolvedBy = "auto"

	for _, a := range []*models.Alert{a1, a2, a3} {
		if err := s.Alerts().Save(ctx, a); err != nil {
			t.Fatalf("Save %s: %v", a.ID, err)
		}
	}

	all, err := s.Alerts().List(ctx, models.AlertFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d, want 3", len(all))
	}
	if all[0].ID != "a2" {
		t.Errorf("all[0].ID = %s, want a2 (newest first)", all[0].ID)
	}

	crit := models.SeverityCritical
	bySev, err := s.Alerts().List(ctx, models.AlertFilter{Severity: &crit})
	if err != nil {
		t.Fatalf("List by severity: %v", err)
	}
	if len(bySev) != 1 || bySev[0].ID != "a2" {
		t.Errorf("bySev = %+v, want [a2]", bySev)
	}

	byState, err := s.Alerts().List(ctx, models.AlertFilter{State: models.AlertResolved})
	if err != nil {
		t.Fatalf("List by state: %v", err)
	}
	if len(byState) != 1 || byState[0].ID != "a3" {
		t.Errorf("byState = %+v, want [a3]", byState)
	}

	byFactory, err := s.Alerts().List(ctx, models.AlertFilter{FactoryID: "plant-b"})
	if err != nil {
		t.Fatalf("List by factory: %v", err)
	}
	if len(byFactory) != 1 || byFactory[0].ID != "a2" {
		t.Errorf("byFactory = %+v, want [a2]", byFactory)
	}
}

func TestDeleteResolvedBefore(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	oldResolved := testAlert("old")
	oldResolved.State = models.AlertResolved
	oldTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oldResolved.ResolvedAt = &oldTime

	recentResolved := testAlert("recent")
	recentResolved.State = models.AlertResolved
	recentTime := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recentResolved.ResolvedAt = &recentTime

	open := testAlert("open")

	for _, a := range []*models.Alert{oldResolved, recentResolved, open} {
		if err := s.Alerts().Save(ctx, a); err != nil {
			t.Fatalf("Save %s: %v", a.ID, err)
		}
	}

	n, err := s.Alerts().DeleteResolvedBefore(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeleteResolvedBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, err := s.Alerts().GetByID(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old alert still present: %v", err)
	}
	if _, err := s.Alerts().GetByID(ctx, "open"); err != nil {
		t.Errorf("open alert deleted: %v", err)
	}
}

func TestJobRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	// Jobs reference an alert row via foreign key.
	if err := s.Alerts().Save(ctx, testAlert("a1")); err != nil {
		t.Fatalf("Save alert: %v", err)
	}

	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	job := &models.NotificationJob{
		ID:            "j1",
		AlertID:       "a1",
		Event:         models.EventOpened,
		Channel:       models.ChannelEmail,
		Recipient:     "ops@example.com",
		Subject:       "[HIGH] alert opened",
		Body:          "temperature out of band",
		Status:        models.JobFailed,
		Attempts:      2,
		NextAttemptAt: created.Add(time.Minute),
		LastError:     "gateway unavailable",
		CreatedAt:     created,
		UpdatedAt:     created.Add(30 * time.Second),
	}
	if err := s.Jobs().Save(ctx, job); err != nil {
		t.Fatalf("Save job: %v", err)
	}

	got, err := s.Jobs().GetByID(ctx, "j1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.AlertID != "a1" || got.Channel != models.ChannelEmail ||
		got.Status != models.JobFailed || got.Attempts != 2 {
		t.Errorf("got %+v", got)
	}
	if !got.NextAttemptAt.Equal(job.NextAttemptAt) {
		t.Errorf("NextAttemptAt = %v, want %v", got.NextAttemptAt, job.NextAttemptAt)
	}
	if got.LastError != "gateway unavailable" {
		t.Errorf("LastError = %q", got.LastError)
	}
}

func TestJobListByAlert(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	if err := s.Alerts().Save(ctx, testAlert("a1")); err != nil {
		t.Fatalf("Save alert: %v", err)
	}

	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, ch := range []models.Channel{models.ChannelEmail, models.ChannelPush} {
		job := &models.NotificationJob{
			ID:        "j" + string(rune('1'+i)),
			AlertID:   "a1",
			Event:     models.EventOpened,
			Channel:   ch,
			Recipient: "ops@example.com",
			Body:      "body",
			Status:    models.JobSent,
			Attempts:  1,
			CreatedAt: created.Add(time.Duration(i) * time.Second),
			UpdatedAt: created.Add(time.Duration(i) * time.Second),
		}
		if err := s.Jobs().Save(ctx, job); err != nil {
			t.Fatalf("Save job: %v", err)
		}
	}

	jobs, err := s.Jobs().ListByAlert(ctx, "a1")
	if err != nil {
		t.Fatalf("ListByAlert: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].ID != "j1" {
		t.Errorf("jobs[0].ID = %s, want j1 (oldest first)", jobs[0].ID)
	}

	if _, err := s.Jobs().GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
