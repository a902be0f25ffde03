package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/usecase/auction"
	"tg-collector-bot/internal/usecase/raid"
)

func (h *Handler) handleAuction(ctx context.Context, msg *tgbotapi.Message, args []string) {
	chatID := msg.Chat.ID
	bid, ok := parseAmount(args, 1)
	if len(args) != 2 || !ok {
		h.reply(chatID, "Использование: /auction <id персонажа> <стартовая ставка>", nil)
		return
	}
	channel := h.cfg.AuctionChannel
	if channel == 0 {
		channel = chatID
	}
	a, err := h.svc.Auctions.Start(ctx, h.roleOf(ctx, msg.From.ID), args[0], bid, channel)
	if err != nil {
		h.fail(chatID, msg.From.ID, "не удалось открыть аукцион", err)
		return
	}
	keyboard := h.bidKeyboard(a.ID)
	sent, err := h.replyMedia(channel, a.Character.MediaRef, auctionText(a), &keyboard)
	if err != nil {
		h.log.Error().Err(err).Str("auction", a.ID).Msg("не удалось опубликовать лот")
	} else if err := h.svc.Auctions.AttachMessage(ctx, a.ID, sent.MessageID); err != nil {
		h.log.Error().Err(err).Str("auction", a.ID).Msg("не удалось сохранить сообщение лота")
	}
	if channel != chatID {
		h.reply(chatID, fmt.Sprintf("Аукцион открыт до %s UTC", a.EndTime.Format("15:04")), nil)
	}
}

func (h *Handler) bidKeyboard(auctionID string) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, inc := range h.svc.Auctions.Increments() {
		data := fmt.Sprintf("bid:%s:%d", auctionID, inc)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("+%d 🔮", inc), data))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func auctionText(a domain.Auction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔨 Аукцион\n\n%s\n\n", characterCard(a.Character))
	if a.HasBids() {
		fmt.Fprintf(&b, "Ставка: %d 🔮 (%s)\n", a.HighestBid, a.HighestBidderName)
	} else {
		fmt.Fprintf(&b, "Стартовая ставка: %d 🔮\n", a.StartingBid)
	}
	fmt.Fprintf(&b, "Окончание: %s UTC", a.EndTime.UTC().Format("15:04"))
	return b.String()
}

// parseBid разбирает callback вида bid:<auction_id>:<increment>.
func parseBid(data string) (string, int64, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[1] == "" {
		return "", 0, errBadArgs
	}
	inc, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, errBadArgs
	}
	return parts[1], inc, nil
}

func (h *Handler) handleBidCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	auctionID, inc, err := parseBid(cb.Data)
	if err != nil {
		h.answer(cb.ID, "Некорректная ставка")
		return
	}
	a, err := h.svc.Auctions.PlaceBid(ctx, auctionID, profileOf(cb.From), inc)
	if err != nil {
		text, ok := userErrorText(err)
		if !ok {
			h.log.Error().Err(err).Str("auction", auctionID).Int64("user", cb.From.ID).Msg("не удалось принять ставку")
			text = "Ставка не принята, попробуйте позже"
		}
		h.answer(cb.ID, text)
		return
	}
	h.answer(cb.ID, fmt.Sprintf("Ставка принята: %d 🔮", a.HighestBid))
	h.editAuction(cb.Message, a)
}

func (h *Handler) editAuction(msg *tgbotapi.Message, a domain.Auction) {
	keyboard := h.bidKeyboard(a.ID)
	text := auctionText(a)
	if len(msg.Photo) > 0 {
		edit := tgbotapi.NewEditMessageCaption(msg.Chat.ID, msg.MessageID, text)
		edit.ReplyMarkup = &keyboard
		_, _ = h.send(msg.Chat.ID, "edit_caption", edit)
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(msg.Chat.ID, msg.MessageID, text, keyboard)
	_, _ = h.send(msg.Chat.ID, "edit_text", edit)
}

// AuctionClosed реализует auction.Announcer.
func (h *Handler) AuctionClosed(_ context.Context, a domain.Auction) {
	if a.ChannelID == 0 {
		return
	}
	if a.MessageID != 0 {
		edit := tgbotapi.NewEditMessageReplyMarkup(a.ChannelID, a.MessageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		_, _ = h.send(a.ChannelID, "edit_markup", edit)
	}
	var text string
	switch {
	case a.Settled:
		text = fmt.Sprintf("🔨 Аукцион завершён! %s достаётся %s за %d 🔮", a.Character.Name, a.HighestBidderName, a.HighestBid)
	case a.HasBids():
		text = fmt.Sprintf("🔨 Аукцион завершён, но у %s не хватило кристаллов. %s остаётся без владельца", a.HighestBidderName, a.Character.Name)
	default:
		text = fmt.Sprintf("🔨 Аукцион завершён без ставок. %s остаётся без владельца", a.Character.Name)
	}
	h.reply(a.ChannelID, text, nil)
}

func attackKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚡ Быстрая", "attack:"+string(raid.AttackQuick)),
			tgbotapi.NewInlineKeyboardButtonData("💥 Мощная", "attack:"+string(raid.AttackPower)),
			tgbotapi.NewInlineKeyboardButtonData("🌟 Ультимейт", "attack:"+string(raid.AttackUltimate)),
		),
	)
}

func (h *Handler) handleRaid(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	r, created, err := h.svc.Raids.StartRaid(ctx, msg.From.ID)
	if err != nil {
		h.fail(chatID, msg.From.ID, "не удалось начать рейд", err)
		return
	}
	h.mu.Lock()
	if _, ok := h.raidChats[r.ID]; !ok {
		h.raidChats[r.ID] = chatID
	}
	h.mu.Unlock()

	title := "👹 Босс уже ждёт!"
	if created {
		title = "👹 Босс призван!"
	}
	text := fmt.Sprintf("%s\nHP: %d/%d\nЗащита: %d | Атака: %d\nОсталось: %s\nТри атаки в сутки (UTC)",
		title, r.HP, r.MaxHP, r.Defense, r.Attack, formatDuration(time.Until(r.EndsAt)))
	keyboard := attackKeyboard()
	h.reply(chatID, text, &keyboard)
}

func (h *Handler) handleAttack(ctx context.Context, chatID int64, from *tgbotapi.User, rawKind string) {
	if strings.TrimSpace(rawKind) == "" {
		keyboard := attackKeyboard()
		h.reply(chatID, "Выберите атаку: /attack <quick|power|ultimate>", &keyboard)
		return
	}
	kind, err := raid.ParseAttackKind(strings.ToLower(strings.TrimSpace(rawKind)))
	if err != nil {
		h.fail(chatID, from.ID, "", err)
		return
	}
	res, err := h.svc.Raids.Attack(ctx, from.ID, kind)
	// Ошибка после победы относится к выдаче наград: урон уже засчитан.
	if err != nil && !res.Defeated {
		h.fail(chatID, from.ID, "не удалось провести атаку", err)
		return
	}
	text := fmt.Sprintf("⚔️ %s наносит %d урона\n🛡 Ответный удар: %d\n❤️ HP босса: %d/%d\nАтак сегодня осталось: %d",
		displayName(from), res.Damage, res.CounterDamage, res.Raid.HP, res.Raid.MaxHP, res.AttemptsLeft)
	if res.Defeated {
		text += "\n\n🏆 Босс повержен!"
	}
	h.reply(chatID, text, nil)
	if err != nil {
		h.log.Error().Err(err).Int64("user", from.ID).Msg("атака учтена, но награды не начислены")
	}
}

// RaidFinished реализует raid.Announcer. rewards == nil означает, что время вышло.
func (h *Handler) RaidFinished(_ context.Context, r domain.Raid, rewards []domain.RaidParticipant) {
	h.mu.Lock()
	chatID, ok := h.raidChats[r.ID]
	delete(h.raidChats, r.ID)
	h.mu.Unlock()
	if !ok {
		chatID = h.cfg.AuctionChannel
	}
	if chatID == 0 {
		h.log.Info().Str("raid", r.ID).Msg("итог рейда некуда опубликовать")
		return
	}
	if rewards == nil {
		h.reply(chatID, fmt.Sprintf("⌛ Время рейда вышло. У босса осталось %d HP", r.HP), nil)
		return
	}
	var b strings.Builder
	b.WriteString("🏆 Босс повержен! Награды участникам:\n")
	for _, p := range rewards {
		fmt.Fprintf(&b, "• %d: %d урона, +%d токенов\n", p.UserID, p.Damage, raid.RewardTokens(p.Damage))
	}
	h.reply(chatID, b.String(), nil)
}

var (
	_ auction.Announcer = (*Handler)(nil)
	_ raid.Announcer    = (*Handler)(nil)
)
