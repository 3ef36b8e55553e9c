package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRunJobFiresRegisteredJob(t *testing.T) {
	r := NewRunner(testLogger())
	ran := false
	if err := r.Register("daily-backup", "0 2 * * *", func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.RunJob(context.Background(), "daily-backup"); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !ran {
		t.Fatalf("job did not run")
	}
}

func TestRunJobUnknownName(t *testing.T) {
	r := NewRunner(testLogger())
	if err := r.RunJob(context.Background(), "nope"); err == nil {
		t.Fatalf("want error for unknown job")
	}
}

func TestRegisterRejectsDuplicateAndBadSpec(t *testing.T) {
	r := NewRunner(testLogger())
	noop := func(context.Context) error { return nil }
	if err := r.Register("j", "0 9 * * *", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("j", "0 9 * * *", noop); err == nil {
		t.Fatalf("want duplicate-name error")
	}
	if err := r.Register("bad", "not a spec", noop); err == nil {
		t.Fatalf("want bad-spec error")
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	r := NewRunner(testLogger())
	if err := r.Register("boom", "0 4 * * *", func(context.Context) error {
		panic("kaboom")
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.RunJob(context.Background(), "boom")
	if err == nil {
		t.Fatalf("panic must surface as error")
	}
}

func TestJobsReportsStatus(t *testing.T) {
	r := NewRunner(testLogger())
	_ = r.Register("b-job", "0 3 * * *", func(context.Context) error { return nil })
	_ = r.Register("a-job", "0 2 * * *", func(context.Context) error { return errors.New("x") })

	_ = r.RunJob(context.Background(), "a-job")

	jobs := r.Jobs()
	if len(jobs) != 2 || jobs[0].Name != "a-job" || jobs[1].Name != "b-job" {
		t.Fatalf("jobs = %+v, want sorted [a-job b-job]", jobs)
	}
	if jobs[0].LastRun == nil {
		t.Fatalf("a-job should record last run even on failure")
	}
	if jobs[1].LastRun != nil {
		t.Fatalf("b-job never ran, LastRun should be nil")
	}
}
