package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-collector-bot/internal/adapters/telegram"
	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
	"tg-collector-bot/internal/usecase/auction"
	"tg-collector-bot/internal/usecase/catalog"
	"tg-collector-bot/internal/usecase/collection"
	"tg-collector-bot/internal/usecase/drops"
	"tg-collector-bot/internal/usecase/economy"
	"tg-collector-bot/internal/usecase/raid"
	"tg-collector-bot/internal/usecase/spam"
	"tg-collector-bot/internal/usecase/summon"
)

const (
	defaultRevealDelay = 7 * time.Second
	defaultDedupeTTL   = 10 * time.Minute
	timerSendTimeout   = 10 * time.Second
)

// Sender — часть Bot API, которой пользуется обработчик. *tgbotapi.BotAPI удовлетворяет интерфейсу.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Services — сценарии, которые вызывает бот.
type Services struct {
	Drops      *drops.Scheduler
	Arbiter    *drops.Arbiter
	Auctions   *auction.Service
	Raids      *raid.Service
	Economy    *economy.Service
	Collection *collection.Service
	Summon     *summon.Service
	Catalog    *catalog.Service
	Spam       *spam.Limiter
}

// Config задаёт параметры обработчика.
type Config struct {
	// AuctionChannel — канал для лотов; 0 означает чат, где выполнена команда.
	AuctionChannel int64
	RevealDelay    time.Duration
	DedupeTTL      time.Duration
}

// Handler обслуживает апдейты бота.
type Handler struct {
	bot    Sender
	log    zerolog.Logger
	svc    Services
	cache  domain.Cache
	timers domain.Timers
	cfg    Config

	mu        sync.Mutex
	raidChats map[string]int64
}

// NewHandler создаёт обработчик и подписывает его на итоги аукционов и рейдов.
func NewHandler(bot Sender, log zerolog.Logger, svc Services, cache domain.Cache, timers domain.Timers, cfg Config) *Handler {
	if cfg.RevealDelay <= 0 {
		cfg.RevealDelay = defaultRevealDelay
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaultDedupeTTL
	}
	h := &Handler{
		bot:       bot,
		log:       log,
		svc:       svc,
		cache:     cache,
		timers:    timers,
		cfg:       cfg,
		raidChats: make(map[string]int64),
	}
	if svc.Auctions != nil {
		svc.Auctions.SetAnnouncer(h)
	}
	if svc.Raids != nil {
		svc.Raids.SetAnnouncer(h)
	}
	return h
}

// HandleUpdate обрабатывает апдейт ровно один раз. Ошибка означает, что апдейт не учтён
// и его можно доставить повторно.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) error {
	key := "update:" + strconv.Itoa(upd.UpdateID)
	ran, err := h.cache.Once(ctx, key, h.cfg.DedupeTTL, func() error {
		return h.dispatch(ctx, upd)
	})
	switch {
	case !ran && err != nil:
		h.log.Warn().Err(err).Int("update", upd.UpdateID).Msg("не удалось проверить повтор апдейта")
		return h.dispatch(ctx, upd)
	case !ran:
		metrics.IncDuplicateUpdate()
		h.log.Debug().Int("update", upd.UpdateID).Msg("повторный апдейт пропущен")
		return nil
	}
	return err
}

func (h *Handler) dispatch(ctx context.Context, upd tgbotapi.Update) error {
	switch {
	case upd.Message != nil:
		return h.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	}
	return nil
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	isCommand := strings.HasPrefix(text, "/")

	var countErr error
	if !msg.Chat.IsPrivate() {
		countErr = h.countMessage(ctx, msg)
	}

	if isCommand {
		if countErr != nil {
			h.log.Error().Err(countErr).Int64("chat", msg.Chat.ID).Msg("не удалось учесть сообщение")
		}
		h.handleCommand(ctx, msg, text)
		return nil
	}
	h.tryHandleShopInput(ctx, msg, text)
	return countErr
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message, text string) {
	cmd, args := splitCommand(text)
	if cmd == "" {
		return
	}
	verdict, err := h.svc.Spam.Check(ctx, msg.From.ID)
	if err != nil {
		h.log.Warn().Err(err).Int64("user", msg.From.ID).Msg("антиспам недоступен")
	}
	if !verdict.Allowed {
		if verdict.JustBanned {
			h.reply(msg.Chat.ID, fmt.Sprintf("Слишком много команд. Бот не будет отвечать вам %s.", formatDuration(h.svc.Spam.Ban())), nil)
		}
		return
	}

	chatID := msg.Chat.ID
	switch cmd {
	case "start":
		h.reply(chatID, "Привет! Я бросаю персонажей в чат, а вы угадываете их имена командой /guess. /help — все команды.", nil)
	case "help":
		h.reply(chatID, helpText, nil)
	case "collect", "guess", "protecc", "grab", "hunt":
		h.handleGuess(ctx, msg, args)
	case "droptime":
		h.handleDropTime(ctx, msg)
	case "setdroptime":
		h.handleSetDropTime(ctx, msg, args)
	case "claim":
		h.handleClaim(ctx, msg)
	case "fav":
		h.handleFav(ctx, msg, args)
	case "harem", "collection":
		h.handleHarem(ctx, msg)
	case "trade":
		h.handleTrade(ctx, msg, args)
	case "gift":
		h.handleGift(ctx, msg, args)
	case "daily":
		h.handlePeriodic(ctx, msg, domain.CooldownDaily)
	case "weekly":
		h.handlePeriodic(ctx, msg, domain.CooldownWeekly)
	case "monthly":
		h.handlePeriodic(ctx, msg, domain.CooldownMonthly)
	case "explore":
		h.handleExplore(ctx, msg, args)
	case "bank":
		h.handleBank(ctx, msg)
	case "deposit":
		h.handleDeposit(ctx, msg, args)
	case "withdraw":
		h.handleWithdraw(ctx, msg, args)
	case "shop":
		h.handleShop(msg)
	case "buypass":
		h.handleBuyPass(ctx, msg)
	case "pass":
		h.handlePass(ctx, msg)
	case "inventory":
		h.handleInventory(ctx, msg)
	case "bsummon":
		h.handleSummon(ctx, msg, args)
	case "banners":
		h.handleBanners(ctx, msg)
	case "createbanner":
		h.handleCreateBanner(ctx, msg, args)
	case "badd":
		h.handleBannerAdd(ctx, msg, args)
	case "baddall":
		h.handleBannerAddAll(ctx, msg, args)
	case "baddrarity":
		h.handleBannerAddRarity(ctx, msg, args)
	case "upload":
		h.handleUpload(ctx, msg, args)
	case "delete":
		h.handleDelete(ctx, msg, args)
	case "update":
		h.handleUpdateCharacter(ctx, msg, args)
	case "resetdb":
		h.handleReset(ctx, msg)
	case "generatecode":
		h.handleGenerateCode(ctx, msg, args)
	case "redeem":
		h.handleRedeem(ctx, msg, args)
	case "addrole":
		h.handleAddRole(ctx, msg, args)
	case "auction":
		h.handleAuction(ctx, msg, args)
	case "startraid", "raid":
		h.handleRaid(ctx, msg)
	case "attack":
		h.handleAttack(ctx, msg.Chat.ID, msg.From, strings.Join(args, " "))
	default:
		if msg.Chat.IsPrivate() {
			h.reply(chatID, "Неизвестная команда. Используйте /help", nil)
		}
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		h.answer(cb.ID, "")
		return
	}
	data := cb.Data
	switch {
	case strings.HasPrefix(data, "bid:"):
		h.handleBidCallback(ctx, cb)
	case strings.HasPrefix(data, "attack:"):
		h.answer(cb.ID, "")
		h.handleAttack(ctx, cb.Message.Chat.ID, cb.From, strings.TrimPrefix(data, "attack:"))
	case strings.HasPrefix(data, "buy:"):
		h.handleBuyCallback(ctx, cb)
	case data == "shopconfirm":
		h.handleShopConfirm(ctx, cb)
	case data == "shopcancel":
		h.handleShopCancel(ctx, cb)
	case strings.HasPrefix(data, "confirm_trade:"), strings.HasPrefix(data, "confirm_gift:"):
		h.handleOfferConfirm(ctx, cb)
	case strings.HasPrefix(data, "cancel_trade:"), strings.HasPrefix(data, "cancel_gift:"):
		h.handleOfferCancel(ctx, cb)
	default:
		h.answer(cb.ID, "")
	}
}

// splitCommand отделяет имя команды без слеша и упоминания бота от аргументов.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:]
}

// messageKind определяет тип содержимого для счётчика дропов.
func messageKind(msg *tgbotapi.Message) domain.MessageKind {
	switch {
	case len(msg.Photo) > 0:
		return domain.MessageKindPhoto
	case msg.Video != nil:
		return domain.MessageKindVideo
	case msg.Animation != nil:
		return domain.MessageKindAnimation
	case msg.Sticker != nil:
		return domain.MessageKindSticker
	case msg.Document != nil:
		return domain.MessageKindDocument
	case msg.Voice != nil:
		return domain.MessageKindVoice
	case len(msg.Entities) > 0 && msg.Text == "":
		return domain.MessageKindEntities
	case msg.Text != "":
		return domain.MessageKindText
	}
	return domain.MessageKindNone
}

func profileOf(u *tgbotapi.User) domain.Profile {
	return domain.Profile{UserID: u.ID, DisplayName: displayName(u)}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.UserName != "" {
		return "@" + u.UserName
	}
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}

func (h *Handler) roleOf(ctx context.Context, userID int64) domain.Role {
	role, err := h.svc.Catalog.RoleOf(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Int64("user", userID).Msg("не удалось получить роль")
	}
	return role
}

// fail отвечает пользователю текстом ошибки; неизвестные ошибки логируются.
func (h *Handler) fail(chatID int64, userID int64, op string, err error) {
	if text, ok := userErrorText(err); ok {
		h.reply(chatID, text, nil)
		return
	}
	h.log.Error().Err(err).Int64("chat", chatID).Int64("user", userID).Msg(op)
	h.reply(chatID, "Что-то пошло не так. Попробуйте позже", nil)
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == len(parts)-1 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		if _, err := h.send(chatID, "send_message", msg); err != nil {
			return
		}
	}
}

// replyMedia отправляет фото с подписью. Если медиа отклонено, подпись уходит текстом.
func (h *Handler) replyMedia(chatID int64, mediaRef, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	if strings.TrimSpace(mediaRef) == "" {
		return h.replyText(chatID, text, keyboard)
	}
	caption, rest := telegram.SplitCaption(text)
	photo := tgbotapi.NewPhoto(chatID, mediaFile(mediaRef))
	photo.Caption = caption
	if keyboard != nil && len(rest) == 0 {
		photo.ReplyMarkup = keyboard
	}
	sent, err := h.send(chatID, "send_photo", photo)
	if err != nil {
		return h.replyText(chatID, text, keyboard)
	}
	for i, part := range rest {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == len(rest)-1 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		if _, err := h.send(chatID, "send_message", msg); err != nil {
			break
		}
	}
	return sent, nil
}

func (h *Handler) replyText(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	return h.send(chatID, "send_message", msg)
}

func (h *Handler) send(chatID int64, op string, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	start := time.Now()
	sent, err := h.bot.Send(c)
	metrics.ObserveNetworkRequest("telegram_bot", op, strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.IncBotSendError()
		h.log.Error().Err(err).Int64("chat", chatID).Str("op", op).Msg("не удалось отправить сообщение")
	}
	return sent, err
}

func (h *Handler) answer(callbackID, text string) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(callbackID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "callback", start, err)
	if err != nil {
		h.log.Debug().Err(err).Msg("не удалось ответить на callback")
	}
}

// later выполняет fn после задержки, не блокируя обработку апдейта.
func (h *Handler) later(key string, delay time.Duration, fn func(ctx context.Context)) {
	err := h.timers.After(key, time.Now().Add(delay), func() {
		ctx, cancel := context.WithTimeout(context.Background(), timerSendTimeout)
		defer cancel()
		fn(ctx)
	})
	if err != nil {
		h.log.Error().Err(err).Str("timer", key).Msg("не удалось запланировать отложенное сообщение")
		ctx, cancel := context.WithTimeout(context.Background(), timerSendTimeout)
		defer cancel()
		fn(ctx)
	}
}

func mediaFile(ref string) tgbotapi.RequestFileData {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tgbotapi.FileURL(ref)
	}
	return tgbotapi.FileID(ref)
}

func parseAmount(args []string, idx int) (int64, bool) {
	if len(args) <= idx {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(args[idx], "_", ""), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var errBadArgs = errors.New("неверные аргументы")

const helpText = `Команды:
/guess <имя> — угадать персонажа (/collect, /protecc, /grab, /hunt)
/claim — бесплатный персонаж раз в сутки
/harem, /collection — ваша коллекция
/fav <id> — избранный персонаж
/trade <мой_id> <его_id> — обмен (ответом на сообщение игрока)
/gift <id> — подарок (ответом на сообщение игрока)
/daily, /weekly, /monthly — награды
/explore <локация> — исследование
/bank, /deposit <n>, /withdraw <n> — вклад
/shop — магазин
/buypass, /pass — недельный пропуск
/inventory — балансы
/banners, /bsummon <баннер> <1|10> <cc|ticket> — призыв
/redeem <код> — активировать код
/startraid, /attack <quick|power|ultimate> — рейд на босса
/droptime, /setdroptime <n> — частота дропов`
