package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-collector-bot/internal/usecase/drops"
)

func (h *Handler) countMessage(ctx context.Context, msg *tgbotapi.Message) error {
	drop, triggered, err := h.svc.Drops.RecordMessage(ctx, msg.Chat.ID, messageKind(msg))
	if errors.Is(err, drops.ErrNoEligibleCharacters) {
		h.log.Warn().Int64("chat", msg.Chat.ID).Msg("дроп пропущен: каталог пуст")
		return nil
	}
	if err != nil {
		return fmt.Errorf("учёт сообщения: %w", err)
	}
	if !triggered {
		return nil
	}
	text := fmt.Sprintf("✨ Появился персонаж %s!\nУгадайте имя: /guess <имя>", drop.Character.Rarity.Label())
	if _, err := h.replyMedia(msg.Chat.ID, drop.Character.MediaRef, text, nil); err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Str("drop", drop.ID).Msg("не удалось показать дроп")
	}
	return nil
}

func (h *Handler) handleGuess(ctx context.Context, msg *tgbotapi.Message, args []string) {
	chatID := msg.Chat.ID
	if msg.Chat.IsPrivate() {
		h.reply(chatID, "Угадывать персонажей можно только в группах", nil)
		return
	}
	guess := strings.Join(args, " ")
	if guess == "" {
		h.reply(chatID, "Напишите имя: /guess <имя>", nil)
		return
	}
	user := profileOf(msg.From)
	outcome, err := h.svc.Arbiter.SubmitGuess(ctx, chatID, drops.Guesser{UserID: user.UserID, DisplayName: user.DisplayName}, guess)
	if err != nil {
		h.fail(chatID, user.UserID, "не удалось проверить догадку", err)
		return
	}
	switch outcome.Status {
	case drops.ClaimNoActiveDrop:
		h.reply(chatID, "Сейчас угадывать некого. Ждите следующего персонажа", nil)
	case drops.ClaimAlreadyClaimed:
		h.reply(chatID, "Этого персонажа уже забрали", nil)
	case drops.ClaimIncorrect:
		h.reply(chatID, "❌ Неверно", nil)
	case drops.ClaimWon:
		var b strings.Builder
		fmt.Fprintf(&b, "🎉 %s забирает персонажа!\n\n%s\n\n", user.DisplayName, characterCard(outcome.Character))
		if outcome.SettlementPending {
			b.WriteString("Награда будет начислена чуть позже")
		} else {
			fmt.Fprintf(&b, "Награда: %s", creditText(outcome.Reward.Balances()))
		}
		h.reply(chatID, b.String(), nil)
	}
}

func (h *Handler) handleDropTime(ctx context.Context, msg *tgbotapi.Message) {
	freq, err := h.svc.Drops.Frequency(ctx, msg.Chat.ID)
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось получить частоту дропов", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Персонаж появляется каждые %d сообщений", freq), nil)
}

func (h *Handler) handleSetDropTime(ctx context.Context, msg *tgbotapi.Message, args []string) {
	chatID := msg.Chat.ID
	if msg.Chat.IsPrivate() {
		h.reply(chatID, "Частота дропов настраивается в группе", nil)
		return
	}
	if len(args) != 1 {
		h.reply(chatID, "Использование: /setdroptime <число сообщений>", nil)
		return
	}
	freq, err := strconv.Atoi(args[0])
	if err != nil || freq <= 0 {
		h.reply(chatID, "Частота должна быть положительным числом", nil)
		return
	}
	privileged := h.roleOf(ctx, msg.From.ID).CanAdminister()
	if !privileged && !h.isChatAdmin(chatID, msg.From.ID) {
		h.reply(chatID, "Менять частоту могут только администраторы чата", nil)
		return
	}
	if err := h.svc.Drops.SetFrequency(ctx, chatID, freq, privileged); err != nil {
		h.fail(chatID, msg.From.ID, "не удалось изменить частоту дропов", err)
		return
	}
	h.reply(chatID, fmt.Sprintf("Готово: персонаж будет появляться каждые %d сообщений", freq), nil)
}

func (h *Handler) isChatAdmin(chatID, userID int64) bool {
	member, err := h.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		h.log.Warn().Err(err).Int64("chat", chatID).Int64("user", userID).Msg("не удалось проверить права в чате")
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}
