package services

import (
	"testing"
	"time"
)

func TestBackoffDelayDoubles(t *testing.T) {
	js := &JobService{backoffBase: 5 * time.Second}

	tests := []struct {
		attempt int
		delay   time.Duration
	}{
		{1, 0},
		{2, 5 * time.Second},
		{3, 10 * time.Second},
		{4, 20 * time.Second},
	}

	for _, tt := range tests {
		if got := js.backoffDelay(tt.attempt); got != tt.delay {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.delay, got)
		}
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("JOB_TEST_INT", "")
	if got := envInt("JOB_TEST_INT", 2); got != 2 {
		t.Errorf("unset: expected fallback 2, got %d", got)
	}

	t.Setenv("JOB_TEST_INT", "7")
	if got := envInt("JOB_TEST_INT", 2); got != 7 {
		t.Errorf("set: expected 7, got %d", got)
	}

	t.Setenv("JOB_TEST_INT", "-3")
	if got := envInt("JOB_TEST_INT", 2); got != 2 {
		t.Errorf("negative: expected fallback 2, got %d", got)
	}

	t.Setenv("JOB_TEST_INT", "banana")
	if got := envInt("JOB_TEST_INT", 2); got != 2 {
		t.Errorf("garbage: expected fallback 2, got %d", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("JOB_TEST_DURATION", "")
	if got := envDuration("JOB_TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("unset: expected fallback, got %v", got)
	}

	t.Setenv("JOB_TEST_DURATION", "90s")
	if got := envDuration("JOB_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("set: expected 90s, got %v", got)
	}

	t.Setenv("JOB_TEST_DURATION", "soon")
	if got := envDuration("JOB_TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("garbage: expected fallback, got %v", got)
	}
}
