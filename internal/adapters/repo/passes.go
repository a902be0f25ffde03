package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

// ActivatePass реализует domain.PassRepo.
func (p *Postgres) ActivatePass(ctx context.Context, userID int64, price int64, expiresAt, now time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	return p.inTx(ctx, "profiles", func(tx pgx.Tx) error {
		if err := ensureProfileTx(ctx, tx, userID); err != nil {
			return err
		}
		var current sql.NullTime
		start := time.Now()
		err := tx.QueryRow(ctx, `SELECT pass_expires_at FROM profiles WHERE user_id=$1 FOR UPDATE`, userID).Scan(&current)
		metrics.ObserveNetworkRequest("postgres", "profiles_lock_pass", "profiles", start, err)
		if err != nil {
			return err
		}
		if current.Valid && now.Before(current.Time) {
			return domain.ErrPassActive
		}
		if _, err := applyBalancesTx(ctx, tx, userID, domain.Balances{Diamonds: price}, domain.Balances{}); err != nil {
			return err
		}
		start = time.Now()
		_, err = tx.Exec(ctx, `UPDATE profiles SET pass_expires_at=$2 WHERE user_id=$1`, userID, expiresAt)
		metrics.ObserveNetworkRequest("postgres", "profiles_set_pass", "profiles", start, err)
		return err
	})
}

// ListPassHolders реализует domain.PassRepo.
func (p *Postgres) ListPassHolders(ctx context.Context, now time.Time) ([]domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, profileSelect+`WHERE p.pass_expires_at > $1 ORDER BY p.user_id`, now)
	metrics.ObserveNetworkRequest("postgres", "profiles_list_pass_holders", "profiles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		pr, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// ClearExpiredPasses реализует domain.PassRepo.
func (p *Postgres) ClearExpiredPasses(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE profiles SET pass_expires_at=NULL WHERE pass_expires_at <= $1`, now)
	metrics.ObserveNetworkRequest("postgres", "profiles_clear_passes", "profiles", start, err)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// AcquirePassPayout реализует domain.PassRepo.
func (p *Postgres) AcquirePassPayout(ctx context.Context, userID int64, day time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO pass_payouts (user_id, day) VALUES ($1, $2)
ON CONFLICT (user_id, day) DO NOTHING
`, userID, domain.UTCDay(day))
	metrics.ObserveNetworkRequest("postgres", "pass_payouts_insert", "pass_payouts", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
