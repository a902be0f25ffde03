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

const auctionSelect = `
SELECT a.id, a.channel_id, a.message_id, a.status, a.starting_bid, a.highest_bid, a.highest_bidder,
       a.highest_bidder_name, a.end_time, a.settled, a.created_at,
       c.id, c.name, c.anime, c.rarity, c.category, c.media_ref, c.created_at, c.deleted_at
FROM auctions a
JOIN characters c ON c.id = a.character_id
`

func scanAuction(row rowScanner) (domain.Auction, error) {
	var (
		a       domain.Auction
		status  string
		rarity  int16
		deleted sql.NullTime
	)
	c := &a.Character
	if err := row.Scan(&a.ID, &a.ChannelID, &a.MessageID, &status, &a.StartingBid, &a.HighestBid, &a.HighestBidder,
		&a.HighestBidderName, &a.EndTime, &a.Settled, &a.CreatedAt,
		&c.ID, &c.Name, &c.Anime, &rarity, &c.Category, &c.MediaRef, &c.CreatedAt, &deleted); err != nil {
		return domain.Auction{}, err
	}
	a.Status = domain.AuctionStatus(status)
	c.Rarity = domain.Rarity(rarity)
	c.DeletedAt = timePtr(deleted)
	return a, nil
}

// CreateAuction реализует domain.AuctionRepo.
func (p *Postgres) CreateAuction(ctx context.Context, a domain.Auction) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO auctions (id, character_id, channel_id, message_id, status, starting_bid, highest_bid, end_time, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, a.ID, a.Character.ID, a.ChannelID, a.MessageID, string(a.Status), a.StartingBid, a.HighestBid, a.EndTime, a.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "auctions_insert", "auctions", start, err)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// GetAuction реализует domain.AuctionRepo.
func (p *Postgres) GetAuction(ctx context.Context, id string) (domain.Auction, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	a, err := scanAuction(p.pool.QueryRow(ctx, auctionSelect+`WHERE a.id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "auctions_get", "auctions", start, err)
	return a, notFound(err)
}

// ListOngoingAuctions реализует domain.AuctionRepo.
func (p *Postgres) ListOngoingAuctions(ctx context.Context) ([]domain.Auction, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, auctionSelect+`WHERE a.status='ongoing' ORDER BY a.end_time`)
	metrics.ObserveNetworkRequest("postgres", "auctions_list_ongoing", "auctions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAuctionMessage реализует domain.AuctionRepo.
func (p *Postgres) SetAuctionMessage(ctx context.Context, id string, messageID int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE auctions SET message_id=$2 WHERE id=$1`, id, messageID)
	metrics.ObserveNetworkRequest("postgres", "auctions_set_message", "auctions", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CompareAndSetBid реализует domain.AuctionRepo.
func (p *Postgres) CompareAndSetBid(ctx context.Context, id string, expected, bid, bidder int64, bidderName string, now time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE auctions SET highest_bid=$3, highest_bidder=$4, highest_bidder_name=$5
WHERE id=$1 AND status='ongoing' AND end_time > $6 AND highest_bid=$2
`, id, expected, bid, bidder, bidderName, now)
	metrics.ObserveNetworkRequest("postgres", "auctions_cas_bid", "auctions", start, err)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := p.GetAuction(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// CloseAuction реализует domain.AuctionRepo. Переход в ended, списание и выдача персонажа
// выполняются одной транзакцией; нехватка средств у победителя оставляет лот непроданным.
func (p *Postgres) CloseAuction(ctx context.Context, id string, now time.Time) (domain.Auction, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		closed  bool
		auction domain.Auction
	)
	err := p.inTx(ctx, "auctions", func(tx pgx.Tx) error {
		var status string
		start := time.Now()
		err := tx.QueryRow(ctx, `SELECT status FROM auctions WHERE id=$1 FOR UPDATE`, id).Scan(&status)
		metrics.ObserveNetworkRequest("postgres", "auctions_lock", "auctions", start, err)
		if err != nil {
			return notFound(err)
		}
		if domain.AuctionStatus(status) == domain.AuctionOngoing {
			start = time.Now()
			_, err = tx.Exec(ctx, `UPDATE auctions SET status='ended' WHERE id=$1`, id)
			metrics.ObserveNetworkRequest("postgres", "auctions_end", "auctions", start, err)
			if err != nil {
				return err
			}
			closed = true
		}

		start = time.Now()
		auction, err = scanAuction(tx.QueryRow(ctx, auctionSelect+`WHERE a.id=$1`, id))
		metrics.ObserveNetworkRequest("postgres", "auctions_get", "auctions", start, err)
		if err != nil || !closed || !auction.HasBids() {
			return err
		}

		if err := ensureProfileTx(ctx, tx, auction.HighestBidder); err != nil {
			return err
		}
		_, err = applyBalancesTx(ctx, tx, auction.HighestBidder, domain.Balances{Crystals: auction.HighestBid}, domain.Balances{})
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := insertOwnedTx(ctx, tx, auction.HighestBidder, []string{auction.Character.ID}, domain.SourceAuction, now); err != nil {
			return err
		}
		start = time.Now()
		_, err = tx.Exec(ctx, `UPDATE auctions SET settled=true WHERE id=$1`, id)
		metrics.ObserveNetworkRequest("postgres", "auctions_settle", "auctions", start, err)
		if err != nil {
			return err
		}
		auction.Settled = true
		return nil
	})
	if err != nil {
		return domain.Auction{}, false, err
	}
	return auction, closed, nil
}
