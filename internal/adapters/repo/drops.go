package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

// AdvanceCounter реализует domain.DropStateRepo.
func (p *Postgres) AdvanceCounter(ctx context.Context, chatID int64, defaultFrequency int) (domain.CounterState, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var state domain.CounterState
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO chat_drop_states (chat_id, message_frequency, message_count)
VALUES ($1, $2, 1)
ON CONFLICT (chat_id) DO UPDATE SET message_count = chat_drop_states.message_count + 1
RETURNING message_count, message_frequency
`, chatID, defaultFrequency).Scan(&state.Count, &state.Frequency)
	metrics.ObserveNetworkRequest("postgres", "chat_drop_states_advance", "chat_drop_states", start, err)
	return state, err
}

// ResetCounter реализует domain.DropStateRepo.
func (p *Postgres) ResetCounter(ctx context.Context, chatID int64, observed int) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE chat_drop_states SET message_count=0 WHERE chat_id=$1 AND message_count=$2`, chatID, observed)
	metrics.ObserveNetworkRequest("postgres", "chat_drop_states_reset", "chat_drop_states", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetFrequency реализует domain.DropStateRepo.
func (p *Postgres) SetFrequency(ctx context.Context, chatID int64, frequency, defaultFrequency int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO chat_drop_states (chat_id, message_frequency) VALUES ($1, $2)
ON CONFLICT (chat_id) DO UPDATE SET message_frequency = EXCLUDED.message_frequency
`, chatID, frequency)
	metrics.ObserveNetworkRequest("postgres", "chat_drop_states_set_frequency", "chat_drop_states", start, err)
	return err
}

// GetDropState реализует domain.DropStateRepo.
func (p *Postgres) GetDropState(ctx context.Context, chatID int64) (domain.ChatDropState, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		st        domain.ChatDropState
		dropID    sql.NullString
		shownAt   sql.NullTime
		claimedBy sql.NullInt64
		claimedAt sql.NullTime
		charID    sql.NullString
		name      sql.NullString
		anime     sql.NullString
		rarity    sql.NullInt16
		category  sql.NullString
		mediaRef  sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT s.chat_id, s.message_frequency, s.message_count, s.drop_id, s.drop_shown_at,
       s.claimed_by, s.claimed_at, s.shown_character_ids,
       c.id, c.name, c.anime, c.rarity, c.category, c.media_ref
FROM chat_drop_states s
LEFT JOIN characters c ON c.id = s.drop_character_id
WHERE s.chat_id = $1
`, chatID).Scan(&st.ChatID, &st.MessageFrequency, &st.MessageCount, &dropID, &shownAt,
		&claimedBy, &claimedAt, &st.ShownCharacterIDs,
		&charID, &name, &anime, &rarity, &category, &mediaRef)
	metrics.ObserveNetworkRequest("postgres", "chat_drop_states_get", "chat_drop_states", start, err)
	if err != nil {
		return domain.ChatDropState{}, notFound(err)
	}
	if dropID.Valid && charID.Valid {
		st.ActiveDrop = &domain.Drop{
			ID:     dropID.String,
			ChatID: chatID,
			Character: domain.Character{
				ID:       charID.String,
				Name:     name.String,
				Anime:    anime.String,
				Rarity:   domain.Rarity(rarity.Int16),
				Category: category.String,
				MediaRef: mediaRef.String,
			},
			ShownAt: shownAt.Time,
		}
	}
	st.ClaimedBy = claimedBy.Int64
	st.ClaimedAt = timePtr(claimedAt)
	return st, nil
}

// ActivateDrop реализует domain.DropStateRepo. Строка чата блокируется на время выбора.
func (p *Postgres) ActivateDrop(ctx context.Context, chatID int64, defaultFrequency int, pick domain.DropPicker) (domain.Drop, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var drop domain.Drop
	err := p.inTx(ctx, "chat_drop_states", func(tx pgx.Tx) error {
		start := time.Now()
		_, err := tx.Exec(ctx, `
INSERT INTO chat_drop_states (chat_id, message_frequency) VALUES ($1, $2)
ON CONFLICT (chat_id) DO NOTHING
`, chatID, defaultFrequency)
		metrics.ObserveNetworkRequest("postgres", "chat_drop_states_ensure", "chat_drop_states", start, err)
		if err != nil {
			return err
		}

		var shown []string
		start = time.Now()
		err = tx.QueryRow(ctx, `SELECT shown_character_ids FROM chat_drop_states WHERE chat_id=$1 FOR UPDATE`, chatID).Scan(&shown)
		metrics.ObserveNetworkRequest("postgres", "chat_drop_states_lock", "chat_drop_states", start, err)
		if err != nil {
			return err
		}

		picked, reset, err := pick(shown)
		if err != nil {
			return err
		}
		picked.ChatID = chatID
		if reset {
			shown = []string{picked.Character.ID}
		} else {
			shown = append(shown, picked.Character.ID)
		}

		start = time.Now()
		_, err = tx.Exec(ctx, `
UPDATE chat_drop_states
SET drop_id=$2, drop_character_id=$3, drop_shown_at=$4, claimed_by=NULL, claimed_at=NULL, shown_character_ids=$5
WHERE chat_id=$1
`, chatID, picked.ID, picked.Character.ID, picked.ShownAt, shown)
		metrics.ObserveNetworkRequest("postgres", "chat_drop_states_activate", "chat_drop_states", start, err)
		if err != nil {
			return err
		}
		drop = picked
		return nil
	})
	return drop, err
}

// ClaimDrop реализует domain.DropStateRepo.
func (p *Postgres) ClaimDrop(ctx context.Context, chatID int64, dropID string, userID int64, now time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE chat_drop_states SET claimed_by=$3, claimed_at=$4
WHERE chat_id=$1 AND drop_id=$2 AND claimed_by IS NULL
`, chatID, dropID, userID, now)
	metrics.ObserveNetworkRequest("postgres", "chat_drop_states_claim", "chat_drop_states", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ApplySettlement реализует domain.SettlementRepo. Запись о расчёте, начисление,
// выдача персонажа и счётчики угаданных фиксируются одной транзакцией.
func (p *Postgres) ApplySettlement(ctx context.Context, s domain.Settlement) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if s.SettledAt.IsZero() {
		s.SettledAt = time.Now().UTC()
	}
	return p.inTx(ctx, "settlements", func(tx pgx.Tx) error {
		start := time.Now()
		tag, err := tx.Exec(ctx, `
INSERT INTO settlements (drop_id, chat_id, user_id, character_id, tokens, diamonds, claimed_at, settled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (drop_id) DO NOTHING
`, s.DropID, s.ChatID, s.UserID, s.Character.ID, s.Reward.Tokens, s.Reward.Diamonds, s.ClaimedAt, s.SettledAt)
		metrics.ObserveNetworkRequest("postgres", "settlements_insert", "settlements", start, err)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadySettled
		}

		if err := ensureProfileTx(ctx, tx, s.UserID); err != nil {
			return err
		}
		if _, err := applyBalancesTx(ctx, tx, s.UserID, domain.Balances{}, s.Reward.Balances()); err != nil {
			return err
		}
		if err := insertOwnedTx(ctx, tx, s.UserID, []string{s.Character.ID}, domain.SourceDrop, s.SettledAt); err != nil {
			return err
		}

		start = time.Now()
		_, err = tx.Exec(ctx, upsertGuessTotalSQL, s.ChatID, s.UserID)
		metrics.ObserveNetworkRequest("postgres", "guess_totals_upsert", "guess_totals", start, err)
		if err != nil {
			return err
		}

		start = time.Now()
		_, err = tx.Exec(ctx, upsertChatTotalSQL, s.ChatID)
		metrics.ObserveNetworkRequest("postgres", "chat_totals_upsert", "chat_totals", start, err)
		return err
	})
}

// Счётчики угаданных персонажей: по игроку в чате и по чату целиком.
const (
	upsertGuessTotalSQL = `
INSERT INTO guess_totals (chat_id, user_id, total) VALUES ($1, $2, 1)
ON CONFLICT (chat_id, user_id) DO UPDATE SET total = guess_totals.total + 1
`
	upsertChatTotalSQL = `
INSERT INTO chat_totals (chat_id, total) VALUES ($1, 1)
ON CONFLICT (chat_id) DO UPDATE SET total = chat_totals.total + 1
`
)
