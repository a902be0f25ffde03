package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/usecase/economy"
)

const shopInputTTL = 2 * time.Minute

var periodicTitles = map[domain.CooldownKind]string{
	domain.CooldownDaily:   "Ежедневная награда",
	domain.CooldownWeekly:  "Еженедельная награда",
	domain.CooldownMonthly: "Ежемесячная награда",
}

func (h *Handler) handlePeriodic(ctx context.Context, msg *tgbotapi.Message, kind domain.CooldownKind) {
	user := profileOf(msg.From)
	res, err := h.svc.Economy.Claim(ctx, user, kind)
	if errors.Is(err, economy.ErrCooldown) {
		h.reply(msg.Chat.ID, fmt.Sprintf("Награда уже получена. Следующая через %s", formatDuration(res.State.Remaining)), nil)
		return
	}
	if err != nil {
		h.fail(msg.Chat.ID, user.UserID, "не удалось выдать награду", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("🎁 %s: %s", periodicTitles[kind], creditText(res.Credit)), nil)
}

func (h *Handler) handleExplore(ctx context.Context, msg *tgbotapi.Message, args []string) {
	location := strings.Join(args, " ")
	if location == "" {
		h.reply(msg.Chat.ID, "Куда отправимся? /explore <локация>\n"+strings.Join(economy.Locations, "\n"), nil)
		return
	}
	for _, l := range economy.Locations {
		if strings.EqualFold(l, location) {
			location = l
			break
		}
	}
	user := profileOf(msg.From)
	res, err := h.svc.Economy.Explore(ctx, user, location)
	if errors.Is(err, economy.ErrCooldown) {
		h.reply(msg.Chat.ID, fmt.Sprintf("Вы ещё в пути. Следующее исследование через %s", formatDuration(res.State.Remaining)), nil)
		return
	}
	if err != nil {
		h.fail(msg.Chat.ID, user.UserID, "не удалось провести исследование", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("🧭 %s: %s\nИсследований сегодня: %d", location, creditText(res.Credit), res.State.UsedToday), nil)
}

func (h *Handler) handleBank(ctx context.Context, msg *tgbotapi.Message) {
	profile, err := h.svc.Economy.Inventory(ctx, profileOf(msg.From))
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось получить вклад", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("🏦 Вклад: %d Zeni\n💰 На руках: %d Zeni\n/deposit <n> — положить, /withdraw <n> — снять", profile.Balances.Bank, profile.Balances.Coins), nil)
}

func (h *Handler) handleDeposit(ctx context.Context, msg *tgbotapi.Message, args []string) {
	amount, ok := parseAmount(args, 0)
	if !ok {
		h.reply(msg.Chat.ID, "Использование: /deposit <сумма>", nil)
		return
	}
	if _, err := h.svc.Economy.Inventory(ctx, profileOf(msg.From)); err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось создать профиль", err)
		return
	}
	balances, err := h.svc.Economy.Deposit(ctx, msg.From.ID, amount)
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось пополнить вклад", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Вклад пополнен. Во вкладе: %d Zeni", balances.Bank), nil)
}

func (h *Handler) handleWithdraw(ctx context.Context, msg *tgbotapi.Message, args []string) {
	amount, ok := parseAmount(args, 0)
	if !ok {
		h.reply(msg.Chat.ID, "Использование: /withdraw <сумма>", nil)
		return
	}
	balances, err := h.svc.Economy.Withdraw(ctx, msg.From.ID, amount)
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось снять со вклада", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Снято %d Zeni. Во вкладе: %d Zeni", amount, balances.Bank), nil)
}

func (h *Handler) handleShop(msg *tgbotapi.Message) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔮 Кристаллы", "buy:"+string(economy.ItemCrystals)),
			tgbotapi.NewInlineKeyboardButtonData("🎟 Билеты", "buy:"+string(economy.ItemTickets)),
		),
	)
	h.reply(msg.Chat.ID, "🛒 Магазин\n🔮 Хроно-кристалл: 500 Zeni\n🎟 Билет призыва: 1000 Zeni", &keyboard)
}

func shopInputKey(userID int64) string {
	return "shop:input:" + strconv.FormatInt(userID, 10)
}

func shopConfirmKey(userID int64) string {
	return "shop:confirm:" + strconv.FormatInt(userID, 10)
}

func (h *Handler) handleBuyCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	item := economy.Item(strings.TrimPrefix(cb.Data, "buy:"))
	if _, err := item.Price(); err != nil {
		h.answer(cb.ID, "Неизвестный товар")
		return
	}
	if err := h.cache.Set(ctx, shopInputKey(cb.From.ID), []byte(item), shopInputTTL); err != nil {
		h.answer(cb.ID, "Магазин недоступен")
		h.log.Error().Err(err).Int64("user", cb.From.ID).Msg("не удалось сохранить выбор товара")
		return
	}
	h.answer(cb.ID, "")
	h.reply(cb.Message.Chat.ID, "Сколько купить? Отправьте число сообщением", nil)
}

// tryHandleShopInput принимает количество товара после выбора в /shop.
func (h *Handler) tryHandleShopInput(ctx context.Context, msg *tgbotapi.Message, text string) bool {
	quantity, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return false
	}
	raw, err := h.cache.Take(ctx, shopInputKey(msg.From.ID))
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			h.log.Warn().Err(err).Int64("user", msg.From.ID).Msg("не удалось прочитать выбор товара")
		}
		return false
	}
	item := economy.Item(raw)
	cost, err := economy.Quote(item, quantity)
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось рассчитать покупку", err)
		return true
	}
	order := string(item) + ":" + strconv.FormatInt(quantity, 10)
	if err := h.cache.Set(ctx, shopConfirmKey(msg.From.ID), []byte(order), shopInputTTL); err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось сохранить заказ", err)
		return true
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Купить", "shopconfirm"),
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", "shopcancel"),
		),
	)
	h.reply(msg.Chat.ID, fmt.Sprintf("%d × %s за %d Zeni. Подтвердить?", quantity, itemTitle(item), cost), &keyboard)
	return true
}

func (h *Handler) handleShopConfirm(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	raw, err := h.cache.Take(ctx, shopConfirmKey(cb.From.ID))
	if err != nil {
		h.answer(cb.ID, "Заказ не найден или истёк")
		return
	}
	item, qty, ok := strings.Cut(string(raw), ":")
	quantity, convErr := strconv.ParseInt(qty, 10, 64)
	if !ok || convErr != nil {
		h.answer(cb.ID, "Заказ повреждён")
		return
	}
	h.answer(cb.ID, "")
	balances, err := h.svc.Economy.Buy(ctx, cb.From.ID, economy.Item(item), quantity)
	if err != nil {
		h.fail(cb.Message.Chat.ID, cb.From.ID, "не удалось провести покупку", err)
		return
	}
	h.reply(cb.Message.Chat.ID, fmt.Sprintf("Покупка совершена: %d × %s\n\n%s", quantity, itemTitle(economy.Item(item)), balancesText(balances)), nil)
}

func (h *Handler) handleShopCancel(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if err := h.cache.Del(ctx, shopConfirmKey(cb.From.ID)); err != nil {
		h.log.Warn().Err(err).Int64("user", cb.From.ID).Msg("не удалось отменить заказ")
	}
	h.answer(cb.ID, "Покупка отменена")
}

func itemTitle(item economy.Item) string {
	if item == economy.ItemTickets {
		return "🎟 билет"
	}
	return "🔮 кристалл"
}

func (h *Handler) handleBuyPass(ctx context.Context, msg *tgbotapi.Message) {
	expires, err := h.svc.Economy.BuyPass(ctx, profileOf(msg.From))
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось купить пропуск", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("🎫 Пропуск активен до %s UTC. Выплаты приходят каждый день в 00:00 UTC", expires.Format("02.01.2006 15:04")), nil)
}

func (h *Handler) handlePass(ctx context.Context, msg *tgbotapi.Message) {
	profile, err := h.svc.Economy.Inventory(ctx, profileOf(msg.From))
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось получить пропуск", err)
		return
	}
	now := time.Now().UTC()
	if !profile.HasActivePass(now) {
		h.reply(msg.Chat.ID, "Пропуска нет. Купить за 8000 алмазов: /buypass", nil)
		return
	}
	reward := economy.PassRewardFor(now.Weekday())
	h.reply(msg.Chat.ID, fmt.Sprintf("🎫 Пропуск активен ещё %s\nСегодняшняя выплата: %d токенов, %d алмазов и персонаж %s",
		formatDuration(profile.PassExpiresAt.Sub(now)), reward.Tokens, reward.Diamonds, reward.Rarity.Label()), nil)
}

func (h *Handler) handleInventory(ctx context.Context, msg *tgbotapi.Message) {
	profile, err := h.svc.Economy.Inventory(ctx, profileOf(msg.From))
	if err != nil {
		h.fail(msg.Chat.ID, msg.From.ID, "не удалось получить инвентарь", err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("🎒 %s\n\n%s", profile.DisplayName, balancesText(profile.Balances)), nil)
}
