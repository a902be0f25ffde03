package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/usecase/catalog"
)

func (h *Handler) handleUpload(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 4 {
		h.reply(msg.Chat.ID, "Использование: /upload <media_ref> <имя-через-дефис> <аниме-через-дефис> <редкость 1-8>", nil)
		return
	}
	c, err := h.svc.Catalog.Upload(ctx, h.roleOf(ctx, msg.From.ID), catalog.UploadRequest{
		MediaRef:   args[0],
		Name:       args[1],
		Anime:      args[2],
		RarityCode: args[3],
	})
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось загрузить персонажа", err)
		return
	}
	h.reply(msg.Chat.ID, "✅ Персонаж добавлен\n\n"+characterCard(c), nil)
}

func (h *Handler) handleDelete(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		h.reply(msg.Chat.ID, "Использование: /delete <id>", nil)
		return
	}
	c, err := h.svc.Catalog.Delete(ctx, h.roleOf(ctx, msg.From.ID), args[0])
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось удалить персонажа", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("🗑 %s удалён из каталога и коллекций", c.Name), nil)
}

func (h *Handler) handleUpdateCharacter(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 3 {
		h.reply(msg.Chat.ID, "Использование: /update <id> <media_ref|name|anime|rarity> <значение>", nil)
		return
	}
	field := domain.CharacterField(strings.ToLower(args[1]))
	c, err := h.svc.Catalog.Update(ctx, h.roleOf(ctx, msg.From.ID), args[0], field, strings.Join(args[2:], " "))
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось обновить персонажа", err)
		return
	}
	h.reply(msg.Chat.ID, "✏️ Персонаж обновлён\n\n"+characterCard(c), nil)
}

func (h *Handler) handleReset(ctx context.Context, msg *tgbotapi.Message) {
	if err := h.svc.Catalog.ResetGameState(ctx, h.roleOf(ctx, msg.From.ID)); err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось сбросить игру", err)
		return
	}
	h.reply(msg.Chat.ID, "Игровое состояние сброшено. Каталог и баннеры сохранены", nil)
}

func (h *Handler) handleGenerateCode(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		h.reply(msg.Chat.ID, "Использование: /generatecode <код редкости 1-8>", nil)
		return
	}
	code, err := h.svc.Catalog.GenerateCode(ctx, h.roleOf(ctx, msg.From.ID), msg.From.ID, args[0])
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось создать код", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("🎟 Код на персонажа %s: %s", code.Rarity.Label(), code.Code), nil)
}

func (h *Handler) handleRedeem(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		h.reply(msg.Chat.ID, "Использование: /redeem <код>", nil)
		return
	}
	c, err := h.svc.Catalog.Redeem(ctx, profileOf(msg.From), args[0])
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось активировать код", err)
		return
	}
	if _, err := h.replyMedia(msg.Chat.ID, c.MediaRef, "🎉 Код активирован!\n\n"+characterCard(c), nil); err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Msg("не удалось показать персонажа по коду")
	}
}

func (h *Handler) handleAddRole(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) != 2 {
		h.reply(msg.Chat.ID, "Использование: /addrole <user_id> <user|uploader|sudo|owner>", nil)
		return
	}
	target, err := catalog.ParseUserID(args[0])
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "", fmt.Errorf("%w: %v", errBadArgs, err))
		return
	}
	role, err := h.svc.Catalog.AddRole(ctx, h.roleOf(ctx, msg.From.ID), target, args[1])
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось выдать роль", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Пользователю %d выдана роль %s", target, role), nil)
}
