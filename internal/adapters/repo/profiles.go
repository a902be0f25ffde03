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

const profileSelect = `
SELECT p.user_id, p.display_name, p.tokens, p.diamonds, p.coins, p.chrono_crystals, p.summon_tickets,
       p.bank_balance, p.favorite_character_id, p.pass_expires_at, p.created_at, COALESCE(r.role, 'user')
FROM profiles p
LEFT JOIN roles r ON r.user_id = p.user_id
`

func scanProfile(row rowScanner) (domain.Profile, error) {
	var (
		pr       domain.Profile
		favorite sql.NullString
		pass     sql.NullTime
		role     string
	)
	b := &pr.Balances
	if err := row.Scan(&pr.UserID, &pr.DisplayName, &b.Tokens, &b.Diamonds, &b.Coins, &b.Crystals, &b.Tickets,
		&b.Bank, &favorite, &pass, &pr.CreatedAt, &role); err != nil {
		return domain.Profile{}, err
	}
	pr.FavoriteCharacterID = favorite.String
	pr.PassExpiresAt = timePtr(pass)
	pr.Role = domain.Role(role)
	return pr, nil
}

func ensureProfileTx(ctx context.Context, tx pgx.Tx, userID int64) error {
	start := time.Now()
	_, err := tx.Exec(ctx, `INSERT INTO profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	metrics.ObserveNetworkRequest("postgres", "profiles_ensure", "profiles", start, err)
	return err
}

// applyBalancesTx блокирует строку профиля, проверяет покрытие и применяет дельту.
func applyBalancesTx(ctx context.Context, tx pgx.Tx, userID int64, debit, credit domain.Balances) (domain.Balances, error) {
	var b domain.Balances
	start := time.Now()
	err := tx.QueryRow(ctx, `
SELECT tokens, diamonds, coins, chrono_crystals, summon_tickets, bank_balance
FROM profiles WHERE user_id=$1 FOR UPDATE
`, userID).Scan(&b.Tokens, &b.Diamonds, &b.Coins, &b.Crystals, &b.Tickets, &b.Bank)
	metrics.ObserveNetworkRequest("postgres", "profiles_lock", "profiles", start, err)
	if err != nil {
		return domain.Balances{}, notFound(err)
	}
	if !b.Covers(debit) {
		return b, domain.ErrInsufficientFunds
	}
	if debit.IsZero() && credit.IsZero() {
		return b, nil
	}
	b = b.Sub(debit).Add(credit)

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE profiles SET tokens=$2, diamonds=$3, coins=$4, chrono_crystals=$5, summon_tickets=$6, bank_balance=$7
WHERE user_id=$1
`, userID, b.Tokens, b.Diamonds, b.Coins, b.Crystals, b.Tickets, b.Bank)
	metrics.ObserveNetworkRequest("postgres", "profiles_update_balances", "profiles", start, err)
	return b, err
}

func insertOwnedTx(ctx context.Context, tx pgx.Tx, userID int64, characterIDs []string, source string, at time.Time) error {
	if len(characterIDs) == 0 {
		return nil
	}
	start := time.Now()
	_, err := tx.Exec(ctx, `
INSERT INTO owned_characters (user_id, character_id, source, acquired_at)
SELECT $1, id, $3, $4 FROM unnest($2::text[]) AS id
`, userID, characterIDs, source, at)
	metrics.ObserveNetworkRequest("postgres", "owned_characters_insert", "owned_characters", start, err)
	return err
}

// removeOwnedTx удаляет один экземпляр персонажа из коллекции.
func removeOwnedTx(ctx context.Context, tx pgx.Tx, userID int64, characterID string) error {
	start := time.Now()
	tag, err := tx.Exec(ctx, `
DELETE FROM owned_characters WHERE id = (
    SELECT id FROM owned_characters WHERE user_id=$1 AND character_id=$2
    ORDER BY acquired_at LIMIT 1 FOR UPDATE
)
`, userID, characterID)
	metrics.ObserveNetworkRequest("postgres", "owned_characters_remove", "owned_characters", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotOwned
	}
	return nil
}

// EnsureProfile реализует domain.ProfileRepo.
func (p *Postgres) EnsureProfile(ctx context.Context, userID int64, displayName string) (domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO profiles (user_id, display_name) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
    SET display_name = CASE WHEN EXCLUDED.display_name = '' THEN profiles.display_name ELSE EXCLUDED.display_name END
`, userID, displayName)
	metrics.ObserveNetworkRequest("postgres", "profiles_upsert", "profiles", start, err)
	if err != nil {
		return domain.Profile{}, err
	}
	return p.GetProfile(ctx, userID)
}

// GetProfile реализует domain.ProfileRepo.
func (p *Postgres) GetProfile(ctx context.Context, userID int64) (domain.Profile, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	pr, err := scanProfile(p.pool.QueryRow(ctx, profileSelect+`WHERE p.user_id=$1`, userID))
	metrics.ObserveNetworkRequest("postgres", "profiles_get", "profiles", start, err)
	return pr, notFound(err)
}

// CountProfiles реализует domain.ProfileRepo.
func (p *Postgres) CountProfiles(ctx context.Context) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var n int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM profiles`).Scan(&n)
	metrics.ObserveNetworkRequest("postgres", "profiles_count", "profiles", start, err)
	return n, err
}

// ListOwned реализует domain.ProfileRepo.
func (p *Postgres) ListOwned(ctx context.Context, userID int64) ([]domain.OwnedCharacter, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT c.id, c.name, c.anime, c.rarity, c.category, c.media_ref, c.created_at, c.deleted_at, o.acquired_at, o.source
FROM owned_characters o
JOIN characters c ON c.id = o.character_id AND c.deleted_at IS NULL
WHERE o.user_id=$1
ORDER BY o.id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "owned_characters_list", "owned_characters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OwnedCharacter
	for rows.Next() {
		var (
			o       domain.OwnedCharacter
			rarity  int16
			deleted sql.NullTime
		)
		if err := rows.Scan(&o.ID, &o.Name, &o.Anime, &rarity, &o.Category, &o.MediaRef, &o.CreatedAt, &deleted, &o.AcquiredAt, &o.Source); err != nil {
			return nil, err
		}
		o.Rarity = domain.Rarity(rarity)
		o.DeletedAt = timePtr(deleted)
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetFavorite реализует domain.ProfileRepo.
func (p *Postgres) SetFavorite(ctx context.Context, userID int64, characterID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE profiles SET favorite_character_id=$2
WHERE user_id=$1 AND EXISTS (SELECT 1 FROM owned_characters WHERE user_id=$1 AND character_id=$2)
`, userID, characterID)
	metrics.ObserveNetworkRequest("postgres", "profiles_set_favorite", "profiles", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotOwned
	}
	return nil
}

// Exchange реализует domain.ProfileRepo.
func (p *Postgres) Exchange(ctx context.Context, userID int64, debit, credit domain.Balances) (domain.Balances, error) {
	return p.Grant(ctx, userID, debit, credit, nil, "")
}

// Grant реализует domain.ProfileRepo.
func (p *Postgres) Grant(ctx context.Context, userID int64, debit, credit domain.Balances, chars []domain.Character, source string) (domain.Balances, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	ids := make([]string, 0, len(chars))
	for _, c := range chars {
		ids = append(ids, c.ID)
	}

	var balances domain.Balances
	err := p.inTx(ctx, "profiles", func(tx pgx.Tx) error {
		if err := ensureProfileTx(ctx, tx, userID); err != nil {
			return err
		}
		if len(ids) > 0 {
			var live int
			start := time.Now()
			err := tx.QueryRow(ctx, `SELECT count(*) FROM characters WHERE id = ANY($1) AND deleted_at IS NULL`, uniqueIDs(ids)).Scan(&live)
			metrics.ObserveNetworkRequest("postgres", "characters_check_live", "characters", start, err)
			if err != nil {
				return err
			}
			if live != len(uniqueIDs(ids)) {
				return domain.ErrNotFound
			}
		}
		b, err := applyBalancesTx(ctx, tx, userID, debit, credit)
		balances = b
		if err != nil {
			return err
		}
		return insertOwnedTx(ctx, tx, userID, ids, source, time.Now().UTC())
	})
	return balances, err
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ReserveAction реализует domain.ProfileRepo.
func (p *Postgres) ReserveAction(ctx context.Context, userID int64, r domain.ActionReservation) (domain.ActionState, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var state domain.ActionState
	err := p.inTx(ctx, "action_usage", func(tx pgx.Tx) error {
		if err := ensureProfileTx(ctx, tx, userID); err != nil {
			return err
		}
		// Строка профиля сериализует резервирования одного игрока.
		start := time.Now()
		_, err := tx.Exec(ctx, `SELECT 1 FROM profiles WHERE user_id=$1 FOR UPDATE`, userID)
		metrics.ObserveNetworkRequest("postgres", "profiles_lock", "profiles", start, err)
		if err != nil {
			return err
		}

		var (
			last time.Time
			used int
			day  time.Time
		)
		start = time.Now()
		err = tx.QueryRow(ctx, `SELECT last_at, used_today, used_day FROM action_usage WHERE user_id=$1 AND kind=$2`, userID, string(r.Kind)).Scan(&last, &used, &day)
		metrics.ObserveNetworkRequest("postgres", "action_usage_get", "action_usage", start, err)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		state = domain.EvaluateAction(r, last, used, domain.UTCDay(day))
		if !state.Allowed {
			return nil
		}

		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO action_usage (user_id, kind, last_at, used_today, used_day) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, kind) DO UPDATE
    SET last_at = EXCLUDED.last_at, used_today = EXCLUDED.used_today, used_day = EXCLUDED.used_day
`, userID, string(r.Kind), r.Now, state.UsedToday, domain.UTCDay(r.Now))
		metrics.ObserveNetworkRequest("postgres", "action_usage_upsert", "action_usage", start, err)
		return err
	})
	return state, err
}

// TransferCharacter реализует domain.ProfileRepo.
func (p *Postgres) TransferCharacter(ctx context.Context, from, to int64, characterID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	return p.inTx(ctx, "owned_characters", func(tx pgx.Tx) error {
		if err := removeOwnedTx(ctx, tx, from, characterID); err != nil {
			return err
		}
		if err := ensureProfileTx(ctx, tx, to); err != nil {
			return err
		}
		return insertOwnedTx(ctx, tx, to, []string{characterID}, domain.SourceGift, time.Now().UTC())
	})
}

// SwapCharacters реализует domain.ProfileRepo.
func (p *Postgres) SwapCharacters(ctx context.Context, a int64, aCharacterID string, b int64, bCharacterID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	return p.inTx(ctx, "owned_characters", func(tx pgx.Tx) error {
		if err := removeOwnedTx(ctx, tx, a, aCharacterID); err != nil {
			return err
		}
		if err := removeOwnedTx(ctx, tx, b, bCharacterID); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := insertOwnedTx(ctx, tx, a, []string{bCharacterID}, domain.SourceTrade, now); err != nil {
			return err
		}
		return insertOwnedTx(ctx, tx, b, []string{aCharacterID}, domain.SourceTrade, now)
	})
}
