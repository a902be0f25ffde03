package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/usecase/collection"
)

func (h *Handler) handleClaim(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	user := profileOf(msg.From)
	res, err := h.svc.Collection.ClaimDaily(ctx, user)
	if errors.Is(err, collection.ErrCooldown) {
		h.reply(chatID, fmt.Sprintf("Вы уже получили персонажа. Следующий через %s", formatDuration(res.State.Remaining)), nil)
		return
	}
	if err != nil {
		h.fail(chatID, user.UserID, "не удалось выдать персонажа", err)
		return
	}
	h.reply(chatID, "🎲 Крутим барабан...", nil)
	character := res.Character
	h.later("reveal:claim:"+uuid.NewString(), h.cfg.RevealDelay, func(context.Context) {
		text := fmt.Sprintf("%s, ваш персонаж дня:\n\n%s", user.DisplayName, characterCard(character))
		if _, err := h.replyMedia(chatID, character.MediaRef, text, nil); err != nil {
			h.log.Error().Err(err).Int64("chat", chatID).Str("character", character.ID).Msg("не удалось показать персонажа")
		}
	})
}

func (h *Handler) handleFav(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		h.reply(msg.Chat.ID, "Использование: /fav <id>", nil)
		return
	}
	character, err := h.svc.Collection.SetFavorite(ctx, msg.From.ID, args[0])
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось выбрать избранного", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("💖 Избранный персонаж: %s", character.Name), nil)
}

func (h *Handler) handleHarem(ctx context.Context, msg *tgbotapi.Message) {
	harem, err := h.svc.Collection.Harem(ctx, profileOf(msg.From))
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось получить коллекцию", err)
		return
	}
	if harem.Total == 0 {
		h.reply(msg.Chat.ID, "Коллекция пуста. Угадывайте персонажей в чатах или используйте /claim", nil)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📚 Коллекция %s: %d персонажей\n", harem.Profile.DisplayName, harem.Total)
	for _, group := range harem.Groups {
		fmt.Fprintf(&b, "\n📺 %s\n", group.Anime)
		for _, entry := range group.Entries {
			line := characterLine(entry.Character)
			if entry.Count > 1 {
				line += fmt.Sprintf(" ×%d", entry.Count)
			}
			if entry.Character.ID == harem.Profile.FavoriteCharacterID {
				line = "💖 " + line
			}
			b.WriteString(line + "\n")
		}
	}
	h.reply(msg.Chat.ID, b.String(), nil)
}

// partnerOf возвращает автора сообщения, на которое ответил пользователь.
func partnerOf(msg *tgbotapi.Message) (domain.Profile, bool) {
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil || msg.ReplyToMessage.From.IsBot {
		return domain.Profile{}, false
	}
	return profileOf(msg.ReplyToMessage.From), true
}

func (h *Handler) handleTrade(ctx context.Context, msg *tgbotapi.Message, args []string) {
	partner, ok := partnerOf(msg)
	if !ok || len(args) != 2 {
		h.reply(msg.Chat.ID, "Ответьте на сообщение игрока: /trade <мой_id> <его_id>", nil)
		return
	}
	offer, err := h.svc.Collection.ProposeTrade(ctx, profileOf(msg.From), partner, args[0], args[1])
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось предложить обмен", err)
		return
	}
	keyboard := offerKeyboard("trade", offer.ID)
	h.reply(msg.Chat.ID, fmt.Sprintf("🔁 %s предлагает %s обмен: %s на %s.\nПодтвердить может только %s",
		offer.FromName, offer.ToName, offer.FromCharacter, offer.ToCharacter, offer.ToName), &keyboard)
}

func (h *Handler) handleGift(ctx context.Context, msg *tgbotapi.Message, args []string) {
	partner, ok := partnerOf(msg)
	if !ok || len(args) != 1 {
		h.reply(msg.Chat.ID, "Ответьте на сообщение игрока: /gift <id>", nil)
		return
	}
	offer, err := h.svc.Collection.ProposeGift(ctx, profileOf(msg.From), partner, args[0])
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось подготовить подарок", err)
		return
	}
	keyboard := offerKeyboard("gift", offer.ID)
	h.reply(msg.Chat.ID, fmt.Sprintf("🎁 %s дарит %s персонажа %s. Подтвердите отправку", offer.FromName, offer.ToName, offer.FromCharacter), &keyboard)
}

func offerKeyboard(kind, id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", "confirm_"+kind+":"+id),
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", "cancel_"+kind+":"+id),
		),
	)
}

func offerID(data string) string {
	_, id, _ := strings.Cut(data, ":")
	return id
}

func (h *Handler) handleOfferConfirm(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	offer, err := h.svc.Collection.Confirm(ctx, offerID(cb.Data), cb.From.ID)
	if err != nil {
		if text, ok := userErrorText(err); ok {
			h.answer(cb.ID, text)
			return
		}
		h.answer(cb.ID, "")
		h.fail(cb.Message.Chat.ID, cb.From.ID, "не удалось исполнить предложение", err)
		return
	}
	h.answer(cb.ID, "Готово")
	h.clearKeyboard(cb.Message)
	text := fmt.Sprintf("🔁 Обмен состоялся: %s получает %s, %s получает %s", offer.FromName, offer.ToCharacter, offer.ToName, offer.FromCharacter)
	if offer.Kind == domain.OfferGift {
		text = fmt.Sprintf("🎁 %s подарил(а) %s персонажа %s", offer.FromName, offer.ToName, offer.FromCharacter)
	}
	h.reply(cb.Message.Chat.ID, text, nil)
}

func (h *Handler) handleOfferCancel(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	_, err := h.svc.Collection.Cancel(ctx, offerID(cb.Data), cb.From.ID)
	if err != nil {
		if text, ok := userErrorText(err); ok {
			h.answer(cb.ID, text)
			return
		}
		h.log.Error().Err(err).Int64("user", cb.From.ID).Msg("не удалось отменить предложение")
		h.answer(cb.ID, "Не удалось отменить")
		return
	}
	h.answer(cb.ID, "Предложение отменено")
	h.clearKeyboard(cb.Message)
}

func (h *Handler) clearKeyboard(msg *tgbotapi.Message) {
	edit := tgbotapi.NewEditMessageReplyMarkup(msg.Chat.ID, msg.MessageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	_, _ = h.send(msg.Chat.ID, "edit_markup", edit)
}
