package domain

import "time"

// CooldownKind задаёт тип действия с ограничением по времени.
type CooldownKind string

const (
	CooldownClaim   CooldownKind = "claim"
	CooldownDaily   CooldownKind = "daily"
	CooldownWeekly  CooldownKind = "weekly"
	CooldownMonthly CooldownKind = "monthly"
	CooldownExplore CooldownKind = "explore"
)

var cooldownDurations = map[CooldownKind]time.Duration{
	CooldownClaim:   24 * time.Hour,
	CooldownDaily:   24 * time.Hour,
	CooldownWeekly:  7 * 24 * time.Hour,
	CooldownMonthly: 30 * 24 * time.Hour,
	CooldownExplore: 5 * time.Minute,
}

// CooldownDuration возвращает длительность ограничения для действия.
func CooldownDuration(kind CooldownKind) time.Duration {
	return cooldownDurations[kind]
}

// IsOnCooldown сообщает, действует ли ещё ограничение.
func IsOnCooldown(now, last time.Time, d time.Duration) bool {
	if last.IsZero() || d <= 0 {
		return false
	}
	return now.Before(last.Add(d))
}

// CooldownRemaining возвращает оставшееся время ограничения, либо 0.
func CooldownRemaining(now, last time.Time, d time.Duration) time.Duration {
	if !IsOnCooldown(now, last, d) {
		return 0
	}
	return last.Add(d).Sub(now)
}

// Cooldowns хранит время последнего выполнения по типам действий.
type Cooldowns map[CooldownKind]time.Time

// Remaining возвращает остаток ограничения для действия.
func (c Cooldowns) Remaining(kind CooldownKind, now time.Time) time.Duration {
	return CooldownRemaining(now, c[kind], CooldownDuration(kind))
}

// ActionReservation описывает запрос на выполнение действия с кулдауном и дневным лимитом.
type ActionReservation struct {
	Kind       CooldownKind
	Now        time.Time
	Cooldown   time.Duration
	DailyLimit int
}

// ActionState описывает результат попытки зарезервировать действие.
type ActionState struct {
	Allowed      bool
	Last         time.Time
	Remaining    time.Duration
	UsedToday    int
	LimitReached bool
}

// UTCDay приводит момент времени к началу суток UTC.
func UTCDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// EvaluateAction вычисляет результат резервирования по текущему состоянию.
// usedDay — сутки, к которым относится счётчик usedToday.
func EvaluateAction(r ActionReservation, last time.Time, usedToday int, usedDay time.Time) ActionState {
	today := UTCDay(r.Now)
	if !usedDay.Equal(today) {
		usedToday = 0
	}
	state := ActionState{Last: last, UsedToday: usedToday}
	if r.DailyLimit > 0 && usedToday >= r.DailyLimit {
		state.LimitReached = true
		return state
	}
	if remaining := CooldownRemaining(r.Now, last, r.Cooldown); remaining > 0 {
		state.Remaining = remaining
		return state
	}
	state.Allowed = true
	state.Last = r.Now
	state.UsedToday = usedToday + 1
	return state
}
