package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

//go:embed schema.sql
var schema string

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate создаёт недостающие таблицы.
func (p *Postgres) Migrate(ctx context.Context) error {
	start := time.Now()
	_, err := p.pool.Exec(ctx, schema)
	metrics.ObserveNetworkRequest("postgres", "migrate", "schema", start, err)
	return err
}

// Ping проверяет соединение с БД.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// inTx выполняет fn в транзакции. Транзакция откатывается, если fn вернула ошибку.
func (p *Postgres) inTx(ctx context.Context, table string, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", table, start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", table, start, err)
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// RecordGameEvent реализует domain.GameEventRepo.
func (p *Postgres) RecordGameEvent(ctx context.Context, event domain.GameEvent) error {
	if event.Event == "" {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var payload []byte
	if event.Metadata != nil {
		if data, err := json.Marshal(event.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO game_events (event, user_id, chat_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, event.Event, nullInt64(event.UserID), nullInt64(event.ChatID), payload, event.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "game_events_insert", "game_events", start, err)
	return err
}

// GetRole реализует domain.RoleRepo.
func (p *Postgres) GetRole(ctx context.Context, userID int64) (domain.Role, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var role string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT role FROM roles WHERE user_id=$1`, userID).Scan(&role)
	metrics.ObserveNetworkRequest("postgres", "roles_get", "roles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoleUser, nil
	}
	if err != nil {
		return domain.RoleUser, err
	}
	return domain.Role(role), nil
}

// SetRole реализует domain.RoleRepo.
func (p *Postgres) SetRole(ctx context.Context, userID int64, role domain.Role) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO roles (user_id, role) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role
`, userID, string(role))
	metrics.ObserveNetworkRequest("postgres", "roles_upsert", "roles", start, err)
	return err
}

// ResetGameState реализует domain.AdminRepo. Каталог, баннеры и роли сохраняются.
func (p *Postgres) ResetGameState(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, "TRUNCATE "+strings.Join(gameStateTables, ", "))
	metrics.ObserveNetworkRequest("postgres", "reset_game_state", "all", start, err)
	return err
}

// gameStateTables очищаются /resetdb.
var gameStateTables = []string{
	"chat_drop_states", "settlements", "guess_totals", "chat_totals", "owned_characters", "action_usage",
	"pass_payouts", "auctions", "raid_participants", "raid_attempts", "raids", "redeem_codes", "profiles",
}

// EnsureSettlementJob реализует domain.SettlementJobStatusRepo.
func (p *Postgres) EnsureSettlementJob(ctx context.Context, jobID string) (bool, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		done     sql.NullTime
		attempts int
	)

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO settlement_job_statuses (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = settlement_job_statuses.attempts + 1,
        updated_at = now()
RETURNING done_at, attempts
`, jobID).Scan(&done, &attempts)
	metrics.ObserveNetworkRequest("postgres", "settlement_job_statuses_upsert", "settlement_job_statuses", start, err)
	if err != nil {
		return false, 0, err
	}
	return done.Valid, attempts, nil
}

// MarkSettlementJobDone реализует domain.SettlementJobStatusRepo.
func (p *Postgres) MarkSettlementJobDone(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE settlement_job_statuses
SET done_at = COALESCE(done_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "settlement_job_statuses_mark_done", "settlement_job_statuses", start, err)
	return err
}

var (
	_ domain.CharacterRepo           = (*Postgres)(nil)
	_ domain.DropStateRepo           = (*Postgres)(nil)
	_ domain.SettlementRepo          = (*Postgres)(nil)
	_ domain.ProfileRepo             = (*Postgres)(nil)
	_ domain.PassRepo                = (*Postgres)(nil)
	_ domain.AuctionRepo             = (*Postgres)(nil)
	_ domain.RaidRepo                = (*Postgres)(nil)
	_ domain.BannerRepo              = (*Postgres)(nil)
	_ domain.RedeemRepo              = (*Postgres)(nil)
	_ domain.RoleRepo                = (*Postgres)(nil)
	_ domain.AdminRepo               = (*Postgres)(nil)
	_ domain.GameEventRepo           = (*Postgres)(nil)
	_ domain.SettlementJobStatusRepo = (*Postgres)(nil)
)
