package domain

import (
	"testing"
	"time"
)

func TestIsOnCooldown(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		last time.Time
		d    time.Duration
		want bool
	}{
		{name: "never performed", last: time.Time{}, d: time.Hour, want: false},
		{name: "inside window", last: now.Add(-30 * time.Minute), d: time.Hour, want: true},
		{name: "exactly at boundary", last: now.Add(-time.Hour), d: time.Hour, want: false},
		{name: "expired", last: now.Add(-2 * time.Hour), d: time.Hour, want: false},
		{name: "zero duration", last: now, d: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOnCooldown(now, tt.last, tt.d); got != tt.want {
				t.Fatalf("IsOnCooldown() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCooldownsRemaining(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	c := Cooldowns{CooldownExplore: now.Add(-2 * time.Minute)}
	if got := c.Remaining(CooldownExplore, now); got != 3*time.Minute {
		t.Fatalf("ожидали 3m, получили %v", got)
	}
	if got := c.Remaining(CooldownDaily, now); got != 0 {
		t.Fatalf("ожидали 0 для отсутствующего действия, получили %v", got)
	}
}

func TestEvaluateAction(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	today := UTCDay(now)
	yesterday := today.Add(-24 * time.Hour)
	explore := ActionReservation{Kind: CooldownExplore, Now: now, Cooldown: 5 * time.Minute, DailyLimit: 20}

	state := EvaluateAction(explore, time.Time{}, 0, time.Time{})
	if !state.Allowed || state.UsedToday != 1 || !state.Last.Equal(now) {
		t.Fatalf("первое действие должно быть разрешено: %+v", state)
	}

	state = EvaluateAction(explore, now.Add(-time.Minute), 3, today)
	if state.Allowed || state.Remaining != 4*time.Minute {
		t.Fatalf("ожидали кулдаун 4m: %+v", state)
	}

	state = EvaluateAction(explore, now.Add(-time.Hour), 20, today)
	if state.Allowed || !state.LimitReached {
		t.Fatalf("ожидали исчерпанный лимит: %+v", state)
	}

	state = EvaluateAction(explore, now.Add(-time.Hour), 20, yesterday)
	if !state.Allowed || state.UsedToday != 1 {
		t.Fatalf("счётчик должен сброситься на новые сутки: %+v", state)
	}
}
