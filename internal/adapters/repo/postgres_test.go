package repo

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tg-collector-bot/internal/domain"
)

func TestSchemaCoversTables(t *testing.T) {
	for _, table := range []string{
		"characters", "chat_drop_states", "profiles", "owned_characters", "settlements",
		"auctions", "raids", "raid_participants", "banners", "redeem_codes", "settlement_job_statuses",
		"guess_totals", "chat_totals",
	} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("в схеме нет таблицы %s", table)
		}
	}
}

func TestSettlementCountersAndReset(t *testing.T) {
	if !strings.Contains(upsertGuessTotalSQL, "INSERT INTO guess_totals") {
		t.Fatal("расчёт должен увеличивать счётчик игрока в чате")
	}
	if !strings.Contains(upsertChatTotalSQL, "INSERT INTO chat_totals") {
		t.Fatal("расчёт должен увеличивать общий счётчик чата")
	}
	reset := make(map[string]bool, len(gameStateTables))
	for _, table := range gameStateTables {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("/resetdb очищает таблицу %s, которой нет в схеме", table)
		}
		reset[table] = true
	}
	for _, table := range []string{"guess_totals", "chat_totals", "settlements", "owned_characters"} {
		if !reset[table] {
			t.Fatalf("/resetdb должен очищать %s", table)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	if !errors.Is(notFound(pgx.ErrNoRows), domain.ErrNotFound) {
		t.Fatal("pgx.ErrNoRows должен превращаться в domain.ErrNotFound")
	}
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("23505 — нарушение уникальности")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatal("произвольная ошибка не является нарушением уникальности")
	}
}

func TestUniqueIDs(t *testing.T) {
	got := uniqueIDs([]string{"001", "002", "001", "003", "002"})
	if strings.Join(got, ",") != "001,002,003" {
		t.Fatalf("ожидали 001,002,003 в исходном порядке, получили %v", got)
	}
}
