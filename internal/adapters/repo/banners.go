package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

// CreateBanner реализует domain.BannerRepo.
func (p *Postgres) CreateBanner(ctx context.Context, b domain.Banner) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `INSERT INTO banners (name, media_ref, created_at) VALUES ($1, $2, $3)`, b.Name, b.MediaRef, b.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "banners_insert", "banners", start, err)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// GetBanner реализует domain.BannerRepo.
func (p *Postgres) GetBanner(ctx context.Context, name string) (domain.Banner, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var b domain.Banner
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT name, media_ref, created_at FROM banners WHERE name=$1`, name).Scan(&b.Name, &b.MediaRef, &b.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "banners_get", "banners", start, err)
	return b, notFound(err)
}

// ListBanners реализует domain.BannerRepo.
func (p *Postgres) ListBanners(ctx context.Context) ([]domain.Banner, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT name, media_ref, created_at FROM banners ORDER BY name`)
	metrics.ObserveNetworkRequest("postgres", "banners_list", "banners", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Banner
	for rows.Next() {
		var b domain.Banner
		if err := rows.Scan(&b.Name, &b.MediaRef, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddBannerCharacters реализует domain.BannerRepo. Удалённые и уже добавленные персонажи пропускаются.
func (p *Postgres) AddBannerCharacters(ctx context.Context, banner string, characterIDs []string) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if _, err := p.GetBanner(ctx, banner); err != nil {
		return 0, err
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO banner_characters (banner, character_id)
SELECT $1, c.id FROM characters c
WHERE c.id = ANY($2) AND c.deleted_at IS NULL
ON CONFLICT (banner, character_id) DO NOTHING
`, banner, uniqueIDs(characterIDs))
	metrics.ObserveNetworkRequest("postgres", "banner_characters_insert", "banner_characters", start, err)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// BannerCharacters реализует domain.BannerRepo.
func (p *Postgres) BannerCharacters(ctx context.Context, banner string) ([]domain.Character, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if _, err := p.GetBanner(ctx, banner); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT c.id, c.name, c.anime, c.rarity, c.category, c.media_ref, c.created_at, c.deleted_at
FROM banner_characters bc
JOIN characters c ON c.id = bc.character_id AND c.deleted_at IS NULL
WHERE bc.banner = $1
ORDER BY bc.added_at
`, banner)
	metrics.ObserveNetworkRequest("postgres", "banner_characters_list", "banner_characters", start, err)
	if err != nil {
		return nil, err
	}
	return collectCharacters(rows)
}

// CreateRedeemCode реализует domain.RedeemRepo.
func (p *Postgres) CreateRedeemCode(ctx context.Context, code domain.RedeemCode) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO redeem_codes (code, rarity, created_by, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO NOTHING
`, code.Code, int16(code.Rarity), code.CreatedBy, code.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "redeem_codes_insert", "redeem_codes", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// UseRedeemCode реализует domain.RedeemRepo. Код достаётся первому вызову.
func (p *Postgres) UseRedeemCode(ctx context.Context, code string, userID int64, now time.Time) (domain.RedeemCode, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var rc domain.RedeemCode
	err := p.inTx(ctx, "redeem_codes", func(tx pgx.Tx) error {
		var (
			rarity int16
			usedBy sql.NullInt64
			usedAt sql.NullTime
		)
		start := time.Now()
		err := tx.QueryRow(ctx, `
SELECT code, rarity, created_by, used_by, used_at, created_at FROM redeem_codes WHERE code=$1 FOR UPDATE
`, code).Scan(&rc.Code, &rarity, &rc.CreatedBy, &usedBy, &usedAt, &rc.CreatedAt)
		metrics.ObserveNetworkRequest("postgres", "redeem_codes_lock", "redeem_codes", start, err)
		if err != nil {
			return notFound(err)
		}
		rc.Rarity = domain.Rarity(rarity)
		rc.UsedBy = usedBy.Int64
		rc.UsedAt = timePtr(usedAt)
		if usedBy.Valid {
			return domain.ErrCodeUsed
		}

		start = time.Now()
		_, err = tx.Exec(ctx, `UPDATE redeem_codes SET used_by=$2, used_at=$3 WHERE code=$1`, code, userID, now)
		metrics.ObserveNetworkRequest("postgres", "redeem_codes_use", "redeem_codes", start, err)
		if err != nil {
			return err
		}
		rc.UsedBy = userID
		usedTime := now
		rc.UsedAt = &usedTime
		return nil
	})
	if errors.Is(err, domain.ErrCodeUsed) {
		return rc, err
	}
	if err != nil {
		return domain.RedeemCode{}, err
	}
	return rc, nil
}
