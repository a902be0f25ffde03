package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

const raidColumns = `id, hp, max_hp, defense, attack, active, ends_at, defeated_by, rewarded, created_at`

func scanRaid(row rowScanner) (domain.Raid, error) {
	var r domain.Raid
	err := row.Scan(&r.ID, &r.HP, &r.MaxHP, &r.Defense, &r.Attack, &r.Active, &r.EndsAt, &r.DefeatedBy, &r.Rewarded, &r.CreatedAt)
	return r, err
}

func (p *Postgres) listRaids(ctx context.Context, op, where string, args ...any) ([]domain.Raid, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+raidColumns+` FROM raids WHERE `+where+` ORDER BY created_at`, args...)
	metrics.ObserveNetworkRequest("postgres", op, "raids", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Raid
	for rows.Next() {
		r, err := scanRaid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveRaid реализует domain.RaidRepo.
func (p *Postgres) ActiveRaid(ctx context.Context, now time.Time) (domain.Raid, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	r, err := scanRaid(p.pool.QueryRow(ctx, `SELECT `+raidColumns+` FROM raids WHERE active AND ends_at > $1`, now))
	metrics.ObserveNetworkRequest("postgres", "raids_active", "raids", start, err)
	return r, notFound(err)
}

// CreateRaid реализует domain.RaidRepo. Единственность активного босса
// гарантируется частичным уникальным индексом.
func (p *Postgres) CreateRaid(ctx context.Context, r domain.Raid) (domain.Raid, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		out     domain.Raid
		created bool
	)
	err := p.inTx(ctx, "raids", func(tx pgx.Tx) error {
		start := time.Now()
		current, err := scanRaid(tx.QueryRow(ctx, `SELECT `+raidColumns+` FROM raids WHERE active FOR UPDATE`))
		metrics.ObserveNetworkRequest("postgres", "raids_lock_active", "raids", start, err)
		switch {
		case err == nil && r.CreatedAt.Before(current.EndsAt):
			out = current
			return nil
		case err == nil:
			start = time.Now()
			_, err = tx.Exec(ctx, `UPDATE raids SET active=false WHERE id=$1`, current.ID)
			metrics.ObserveNetworkRequest("postgres", "raids_deactivate_stale", "raids", start, err)
			if err != nil {
				return err
			}
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO raids (id, hp, max_hp, defense, attack, active, ends_at, created_at)
VALUES ($1, $2, $3, $4, $5, true, $6, $7)
`, r.ID, r.HP, r.MaxHP, r.Defense, r.Attack, r.EndsAt, r.CreatedAt)
		metrics.ObserveNetworkRequest("postgres", "raids_insert", "raids", start, err)
		if err != nil {
			return err
		}
		r.Active = true
		out = r
		created = true
		return nil
	})
	if isUniqueViolation(err) {
		active, getErr := p.ActiveRaid(ctx, r.CreatedAt)
		return active, false, getErr
	}
	if err != nil {
		return domain.Raid{}, false, err
	}
	return out, created, nil
}

// GetRaid реализует domain.RaidRepo.
func (p *Postgres) GetRaid(ctx context.Context, id string) (domain.Raid, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	r, err := scanRaid(p.pool.QueryRow(ctx, `SELECT `+raidColumns+` FROM raids WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "raids_get", "raids", start, err)
	return r, notFound(err)
}

// ApplyAttack реализует domain.RaidRepo.
func (p *Postgres) ApplyAttack(ctx context.Context, a domain.RaidAttack) (domain.RaidAttackResult, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var res domain.RaidAttackResult
	err := p.inTx(ctx, "raids", func(tx pgx.Tx) error {
		start := time.Now()
		raid, err := scanRaid(tx.QueryRow(ctx, `SELECT `+raidColumns+` FROM raids WHERE id=$1 FOR UPDATE`, a.RaidID))
		metrics.ObserveNetworkRequest("postgres", "raids_lock", "raids", start, err)
		if err != nil {
			return notFound(err)
		}
		res.Raid = raid
		if !raid.Active || !a.Now.Before(raid.EndsAt) {
			return domain.ErrInactive
		}

		limit := a.MaxAttempts
		if limit <= 0 {
			limit = int(^uint32(0) >> 1)
		}
		day := domain.UTCDay(a.Now)
		start = time.Now()
		err = tx.QueryRow(ctx, `
INSERT INTO raid_attempts (user_id, day, attempts) VALUES ($1, $2, 1)
ON CONFLICT (user_id, day) DO UPDATE SET attempts = raid_attempts.attempts + 1
WHERE raid_attempts.attempts < $3
RETURNING attempts
`, a.UserID, day, limit).Scan(&res.Attempt)
		metrics.ObserveNetworkRequest("postgres", "raid_attempts_upsert", "raid_attempts", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Attempt = a.MaxAttempts
			return domain.ErrQuotaExhausted
		}
		if err != nil {
			return err
		}

		damage := a.Damage
		if damage > raid.HP {
			damage = raid.HP
		}
		raid.HP -= damage
		if raid.HP == 0 {
			raid.Active = false
			raid.DefeatedBy = a.UserID
			res.Defeated = true
		}
		start = time.Now()
		_, err = tx.Exec(ctx, `UPDATE raids SET hp=$2, active=$3, defeated_by=$4 WHERE id=$1`, raid.ID, raid.HP, raid.Active, raid.DefeatedBy)
		metrics.ObserveNetworkRequest("postgres", "raids_apply_damage", "raids", start, err)
		if err != nil {
			return err
		}

		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO raid_participants (raid_id, user_id, damage) VALUES ($1, $2, $3)
ON CONFLICT (raid_id, user_id) DO UPDATE SET damage = raid_participants.damage + EXCLUDED.damage
`, raid.ID, a.UserID, damage)
		metrics.ObserveNetworkRequest("postgres", "raid_participants_upsert", "raid_participants", start, err)
		if err != nil {
			return err
		}
		res.Raid = raid
		res.Damage = damage
		return nil
	})
	return res, err
}

// ExpireRaid реализует domain.RaidRepo.
func (p *Postgres) ExpireRaid(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE raids SET active=false WHERE id=$1 AND active`, id)
	metrics.ObserveNetworkRequest("postgres", "raids_expire", "raids", start, err)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := p.GetRaid(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// SettleRaid реализует domain.RaidRepo.
func (p *Postgres) SettleRaid(ctx context.Context, id string, tokensPerDamage float64) ([]domain.RaidParticipant, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		out     []domain.RaidParticipant
		settled bool
	)
	err := p.inTx(ctx, "raids", func(tx pgx.Tx) error {
		start := time.Now()
		raid, err := scanRaid(tx.QueryRow(ctx, `SELECT `+raidColumns+` FROM raids WHERE id=$1 FOR UPDATE`, id))
		metrics.ObserveNetworkRequest("postgres", "raids_lock", "raids", start, err)
		if err != nil {
			return notFound(err)
		}
		if raid.Active || raid.HP > 0 || raid.Rewarded {
			return nil
		}

		start = time.Now()
		rows, err := tx.Query(ctx, `SELECT user_id, damage FROM raid_participants WHERE raid_id=$1 ORDER BY joined_at, user_id`, id)
		metrics.ObserveNetworkRequest("postgres", "raid_participants_list", "raid_participants", start, err)
		if err != nil {
			return err
		}
		for rows.Next() {
			var rp domain.RaidParticipant
			if err := rows.Scan(&rp.UserID, &rp.Damage); err != nil {
				rows.Close()
				return err
			}
			out = append(out, rp)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, rp := range out {
			if err := ensureProfileTx(ctx, tx, rp.UserID); err != nil {
				return err
			}
			credit := domain.Balances{Tokens: int64(float64(rp.Damage) * tokensPerDamage)}
			if _, err := applyBalancesTx(ctx, tx, rp.UserID, domain.Balances{}, credit); err != nil {
				return err
			}
		}

		start = time.Now()
		_, err = tx.Exec(ctx, `UPDATE raids SET rewarded=true WHERE id=$1`, id)
		metrics.ObserveNetworkRequest("postgres", "raids_mark_rewarded", "raids", start, err)
		if err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !settled {
		return nil, false, nil
	}
	return out, true, nil
}

// ListUnsettledRaids реализует domain.RaidRepo.
func (p *Postgres) ListUnsettledRaids(ctx context.Context) ([]domain.Raid, error) {
	return p.listRaids(ctx, "raids_list_unsettled", `NOT active AND hp = 0 AND NOT rewarded`)
}

// ListExpiredRaids реализует domain.RaidRepo.
func (p *Postgres) ListExpiredRaids(ctx context.Context, now time.Time) ([]domain.Raid, error) {
	return p.listRaids(ctx, "raids_list_expired", `active AND ends_at <= $1`, now)
}
