package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fashionfield/checkout/internal/domain"
)

func okCheck(context.Context) error { return nil }

func slowCheck(delay time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestDependencyHealthRepositoryCollect(t *testing.T) {
	refused := errors.New("dial tcp: connection refused")
	cases := []struct {
		name       string
		checks     []DependencyCheck
		wantStatus string
		wantChecks map[string]string
		wantDetail map[string]string
	}{
		{
			name: "all healthy",
			checks: []DependencyCheck{
				{Name: "redis", Check: slowCheck(5 * time.Millisecond)},
				{Name: "guardStore", Check: okCheck},
			},
			wantStatus: domain.HealthStatusOK,
			wantChecks: map[string]string{"redis": domain.HealthStatusOK, "guardStore": domain.HealthStatusOK},
			wantDetail: map[string]string{"redis": "ok"},
		},
		{
			name: "failing dependency degrades",
			checks: []DependencyCheck{
				{Name: "redis", Check: func(context.Context) error { return refused }},
				{Name: "pubsub", Check: okCheck},
			},
			wantStatus: domain.HealthStatusDegraded,
			wantChecks: map[string]string{"redis": domain.HealthStatusDegraded, "pubsub": domain.HealthStatusOK},
			wantDetail: map[string]string{"redis": refused.Error()},
		},
		{
			name: "timeout is an error",
			checks: []DependencyCheck{
				{Name: "secretManager", Timeout: 5 * time.Millisecond, Check: slowCheck(time.Second)},
				{Name: "redis", Check: func(context.Context) error { return refused }},
			},
			wantStatus: domain.HealthStatusError,
			wantChecks: map[string]string{"secretManager": domain.HealthStatusError, "redis": domain.HealthStatusDegraded},
			wantDetail: map[string]string{"secretManager": "timeout"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository(tc.checks)
			if err != nil {
				t.Fatalf("NewDependencyHealthRepository: %v", err)
			}
			report, err := repo.Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if report.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, report.Status)
			}
			if len(report.Checks) != len(tc.wantChecks) {
				t.Fatalf("expected %d checks, got %d", len(tc.wantChecks), len(report.Checks))
			}
			for name, want := range tc.wantChecks {
				if got := report.Checks[name].Status; got != want {
					t.Fatalf("%s: expected %s, got %s", name, want, got)
				}
			}
			for name, want := range tc.wantDetail {
				if got := report.Checks[name].Detail; got != want {
					t.Fatalf("%s: expected detail %q, got %q", name, want, got)
				}
			}
		})
	}
}

func TestDependencyHealthRepositoryUsesClock(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository(
		[]DependencyCheck{{Name: "backend", Check: okCheck}},
		WithDependencyClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !report.GeneratedAt.Equal(now) || !report.Checks["backend"].CheckedAt.Equal(now) {
		t.Fatalf("expected timestamps from clock, got %+v", report)
	}
	if report.Checks["backend"].Latency != 0 {
		t.Fatalf("expected zero latency with frozen clock, got %s", report.Checks["backend"].Latency)
	}
}

func TestDependencyHealthRepositoryDefaultTimeout(t *testing.T) {
	repo, err := NewDependencyHealthRepository(
		[]DependencyCheck{{Name: "firestore", Check: slowCheck(time.Second)}},
		WithDependencyTimeout(5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Checks["firestore"].Detail != "timeout" {
		t.Fatalf("expected default timeout to apply, got %+v", report.Checks["firestore"])
	}
}

func TestNewDependencyHealthRepositoryValidatesChecks(t *testing.T) {
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: " ", Check: okCheck}}); err == nil {
		t.Fatalf("expected error for unnamed check")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "redis"}}); err == nil {
		t.Fatalf("expected error for missing check function")
	}

	repo, err := NewDependencyHealthRepository(nil)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	report, err := repo.Collect(context.Background())
	if err != nil || report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok report for empty check set, got %+v %v", report, err)
	}
}
