package spam

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tg-collector-bot/internal/domain"
)

// Config задаёт пороги антиспама.
type Config struct {
	Limit  int64
	Window time.Duration
	Ban    time.Duration
}

// DefaultConfig возвращает лимиты по умолчанию: больше 6 команд за 10 секунд дают бан на 10 минут.
func DefaultConfig() Config {
	return Config{Limit: 6, Window: 10 * time.Second, Ban: 10 * time.Minute}
}

// Verdict описывает решение по очередной команде.
type Verdict struct {
	Allowed bool
	// JustBanned выставляется на команде, которая превысила лимит.
	JustBanned bool
}

// Limiter считает команды пользователя в фиксированном окне.
type Limiter struct {
	cache domain.Cache
	cfg   Config
}

// NewLimiter создаёт ограничитель.
func NewLimiter(cache domain.Cache, cfg Config) *Limiter {
	if cfg.Limit <= 0 || cfg.Window <= 0 || cfg.Ban <= 0 {
		cfg = DefaultConfig()
	}
	return &Limiter{cache: cache, cfg: cfg}
}

// Ban возвращает длительность бана.
func (l *Limiter) Ban() time.Duration {
	return l.cfg.Ban
}

// Check учитывает команду и решает, обрабатывать ли её.
func (l *Limiter) Check(ctx context.Context, userID int64) (Verdict, error) {
	id := strconv.FormatInt(userID, 10)
	banned, err := l.cache.Exists(ctx, "spam:ban:"+id)
	if err != nil {
		return Verdict{Allowed: true}, fmt.Errorf("проверка бана: %w", err)
	}
	if banned {
		return Verdict{}, nil
	}
	n, err := l.cache.Incr(ctx, "spam:count:"+id, l.cfg.Window)
	if err != nil {
		return Verdict{Allowed: true}, fmt.Errorf("счётчик команд: %w", err)
	}
	if n <= l.cfg.Limit {
		return Verdict{Allowed: true}, nil
	}
	if err := l.cache.Set(ctx, "spam:ban:"+id, []byte("1"), l.cfg.Ban); err != nil {
		return Verdict{}, fmt.Errorf("бан: %w", err)
	}
	return Verdict{JustBanned: true}, nil
}
