package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

const characterColumns = `id, name, anime, rarity, category, media_ref, created_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row rowScanner) (domain.Character, error) {
	var (
		c       domain.Character
		rarity  int16
		deleted sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Anime, &rarity, &c.Category, &c.MediaRef, &c.CreatedAt, &deleted); err != nil {
		return domain.Character{}, err
	}
	c.Rarity = domain.Rarity(rarity)
	c.DeletedAt = timePtr(deleted)
	return c, nil
}

func collectCharacters(rows pgx.Rows) ([]domain.Character, error) {
	defer rows.Close()
	var out []domain.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func rarityCodes(rarities []domain.Rarity) []int16 {
	out := make([]int16, 0, len(rarities))
	for _, r := range rarities {
		out = append(out, int16(r))
	}
	return out
}

// NextCharacterID реализует domain.CharacterRepo.
func (p *Postgres) NextCharacterID(ctx context.Context) (string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var seq int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT nextval('character_id_seq')`).Scan(&seq)
	metrics.ObserveNetworkRequest("postgres", "characters_next_id", "characters", start, err)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%03d", seq), nil
}

// CreateCharacter реализует domain.CharacterRepo.
func (p *Postgres) CreateCharacter(ctx context.Context, c domain.Character) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO characters (id, name, anime, rarity, category, media_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, c.ID, c.Name, c.Anime, int16(c.Rarity), c.Category, c.MediaRef, c.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "characters_insert", "characters", start, err)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// GetCharacter реализует domain.CharacterRepo.
func (p *Postgres) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	c, err := scanCharacter(p.pool.QueryRow(ctx, `SELECT `+characterColumns+` FROM characters WHERE id=$1 AND deleted_at IS NULL`, id))
	metrics.ObserveNetworkRequest("postgres", "characters_get", "characters", start, err)
	return c, notFound(err)
}

// UpdateCharacter реализует domain.CharacterRepo.
func (p *Postgres) UpdateCharacter(ctx context.Context, c domain.Character) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE characters SET name=$2, anime=$3, rarity=$4, category=$5, media_ref=$6
WHERE id=$1 AND deleted_at IS NULL
`, c.ID, c.Name, c.Anime, int16(c.Rarity), c.Category, c.MediaRef)
	metrics.ObserveNetworkRequest("postgres", "characters_update", "characters", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SoftDeleteCharacter реализует domain.CharacterRepo.
func (p *Postgres) SoftDeleteCharacter(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	return p.inTx(ctx, "characters", func(tx pgx.Tx) error {
		start := time.Now()
		tag, err := tx.Exec(ctx, `UPDATE characters SET deleted_at=$2 WHERE id=$1 AND deleted_at IS NULL`, id, now)
		metrics.ObserveNetworkRequest("postgres", "characters_soft_delete", "characters", start, err)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}

		steps := []struct {
			op    string
			table string
			sql   string
		}{
			{"owned_characters_purge", "owned_characters", `DELETE FROM owned_characters WHERE character_id=$1`},
			{"profiles_clear_favorite", "profiles", `UPDATE profiles SET favorite_character_id=NULL WHERE favorite_character_id=$1`},
			{"banner_characters_purge", "banner_characters", `DELETE FROM banner_characters WHERE character_id=$1`},
			{"chat_drop_states_clear", "chat_drop_states", `
UPDATE chat_drop_states SET drop_id=NULL, drop_character_id=NULL, drop_shown_at=NULL
WHERE drop_character_id=$1 AND claimed_by IS NULL`},
		}
		for _, step := range steps {
			start = time.Now()
			_, err = tx.Exec(ctx, step.sql, id)
			metrics.ObserveNetworkRequest("postgres", step.op, step.table, start, err)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCharacters реализует domain.CharacterRepo.
func (p *Postgres) ListCharacters(ctx context.Context, rarities []domain.Rarity) ([]domain.Character, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+characterColumns+` FROM characters
WHERE deleted_at IS NULL AND (cardinality($1::smallint[]) = 0 OR rarity = ANY($1))
ORDER BY id
`, rarityCodes(rarities))
	metrics.ObserveNetworkRequest("postgres", "characters_list", "characters", start, err)
	if err != nil {
		return nil, err
	}
	return collectCharacters(rows)
}

// RandomCharacter реализует domain.CharacterRepo.
func (p *Postgres) RandomCharacter(ctx context.Context, rarities []domain.Rarity) (domain.Character, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	c, err := scanCharacter(p.pool.QueryRow(ctx, `
SELECT `+characterColumns+` FROM characters
WHERE deleted_at IS NULL AND (cardinality($1::smallint[]) = 0 OR rarity = ANY($1))
ORDER BY random() LIMIT 1
`, rarityCodes(rarities)))
	metrics.ObserveNetworkRequest("postgres", "characters_random", "characters", start, err)
	return c, notFound(err)
}
