package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/usecase/summon"
)

func (h *Handler) handleSummon(ctx context.Context, msg *tgbotapi.Message, args []string) {
	chatID := msg.Chat.ID
	if len(args) != 3 {
		h.reply(chatID, "Использование: /bsummon <баннер> <1|10> <cc|ticket>", nil)
		return
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		h.fail(chatID, msg.From.ID, "", summon.ErrInvalidCount)
		return
	}
	user := profileOf(msg.From)
	res, err := h.svc.Summon.Summon(ctx, user, args[0], count, summon.Currency(strings.ToLower(args[2])))
	if err != nil {
		h.fail(chatID, user.UserID, "не удалось провести призыв", err)
		return
	}
	h.reply(chatID, fmt.Sprintf("🌀 %s призывает на баннере %s...", user.DisplayName, res.Banner.Name), nil)

	h.later("reveal:summon:"+uuid.NewString(), h.cfg.RevealDelay, func(context.Context) {
		var b strings.Builder
		fmt.Fprintf(&b, "✨ Лучший результат:\n%s\n", characterCard(res.Rarest))
		if len(res.Pulls) > 1 {
			b.WriteString("\nВсе призывы:\n")
			for _, c := range res.Pulls {
				b.WriteString(characterLine(c) + "\n")
			}
		}
		if _, err := h.replyMedia(chatID, res.Rarest.MediaRef, b.String(), nil); err != nil {
			h.log.Error().Err(err).Int64("chat", chatID).Str("banner", res.Banner.Name).Msg("не удалось показать итог призыва")
		}
	})
}

func (h *Handler) handleBanners(ctx context.Context, msg *tgbotapi.Message) {
	list, err := h.svc.Summon.Banners(ctx)
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось получить баннеры", err)
		return
	}
	if len(list) == 0 {
		h.reply(msg.Chat.ID, "Баннеров пока нет", nil)
		return
	}
	lines := make([]string, 0, len(list)+1)
	lines = append(lines, "🏳️ Баннеры:")
	for _, b := range list {
		lines = append(lines, "• "+b.Name)
	}
	lines = append(lines, "", "Призыв: /bsummon <баннер> <1|10> <cc|ticket>")
	h.reply(msg.Chat.ID, strings.Join(lines, "\n"), nil)
}

func (h *Handler) handleCreateBanner(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 1 || len(args) > 2 {
		h.reply(msg.Chat.ID, "Использование: /createbanner <имя> [media_ref]", nil)
		return
	}
	var media string
	if len(args) == 2 {
		media = args[1]
	}
	banner, err := h.svc.Summon.CreateBanner(ctx, h.roleOf(ctx, msg.From.ID), args[0], media)
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось создать баннер", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Баннер %s создан", banner.Name), nil)
}

func (h *Handler) handleBannerAdd(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 2 {
		h.reply(msg.Chat.ID, "Использование: /badd <баннер> <id персонажа>", nil)
		return
	}
	added, err := h.svc.Summon.AddCharacter(ctx, h.roleOf(ctx, msg.From.ID), args[0], args[1])
	h.replyBannerAdded(msg, args[0], added, err)
}

func (h *Handler) handleBannerAddAll(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		h.reply(msg.Chat.ID, "Использование: /baddall <баннер>", nil)
		return
	}
	added, err := h.svc.Summon.AddAll(ctx, h.roleOf(ctx, msg.From.ID), args[0])
	h.replyBannerAdded(msg, args[0], added, err)
}

func (h *Handler) handleBannerAddRarity(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 2 {
		h.reply(msg.Chat.ID, "Использование: /baddrarity <баннер> <код редкости 1-8>", nil)
		return
	}
	rarity, err := domain.ParseRarityCode(args[1])
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "", err)
		return
	}
	added, err := h.svc.Summon.AddRarity(ctx, h.roleOf(ctx, msg.From.ID), args[0], rarity)
	h.replyBannerAdded(msg, args[0], added, err)
}

func (h *Handler) replyBannerAdded(msg *tgbotapi.Message, banner string, added int, err error) {
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось пополнить баннер", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("На баннер %s добавлено персонажей: %d", banner, added), nil)
}
