package bot

import (
	"errors"
	"unicode"
	"unicode/utf8"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/usecase/auction"
	"tg-collector-bot/internal/usecase/catalog"
	"tg-collector-bot/internal/usecase/collection"
	"tg-collector-bot/internal/usecase/drops"
	"tg-collector-bot/internal/usecase/economy"
	"tg-collector-bot/internal/usecase/raid"
	"tg-collector-bot/internal/usecase/summon"
)

// userErrors сопоставляет пользовательские ошибки с ответами. Пустой текст означает
// текст самой ошибки. Порядок важен: специфичные ошибки идут раньше общих.
var userErrors = []struct {
	err  error
	text string
}{
	{errBadArgs, "Неверные аргументы. Подсказка: /help"},
	{domain.ErrForbidden, "Эта команда вам недоступна"},
	{domain.ErrInsufficientFunds, "Недостаточно средств"},
	{domain.ErrNotOwned, "Этого персонажа нет в вашей коллекции"},
	{domain.ErrQuotaExhausted, "Попытки на сегодня закончились. Приходите завтра"},
	{domain.ErrInactive, "Событие уже завершено"},
	{domain.ErrCodeUsed, "Этот код уже активирован"},
	{domain.ErrPassActive, "Пропуск уже активен"},
	{domain.ErrUnknownRarity, "Редкость указывается цифрой от 1 до 8"},
	{domain.ErrAlreadyExists, "Такая запись уже есть"},
	{drops.ErrFrequencyTooLow, ""},
	{drops.ErrNoEligibleCharacters, "Каталог персонажей пуст"},
	{auction.ErrOutbid, "Ставку уже перебили, попробуйте ещё раз"},
	{auction.ErrInvalidIncrement, ""},
	{auction.ErrSelfOutbid, ""},
	{auction.ErrInvalidStartingBid, ""},
	{raid.ErrNoTeam, ""},
	{raid.ErrNoActiveRaid, "Активного рейда нет. Призовите босса командой /startraid"},
	{raid.ErrUnknownAttack, "Атака: quick, power или ultimate"},
	{economy.ErrDailyLimit, ""},
	{economy.ErrInvalidAmount, ""},
	{economy.ErrWithdrawLimit, ""},
	{economy.ErrUnknownItem, ""},
	{economy.ErrUnknownLocation, ""},
	{collection.ErrOfferNotFound, ""},
	{collection.ErrNotParticipant, ""},
	{collection.ErrSelfOffer, ""},
	{collection.ErrEmptyCatalog, ""},
	{summon.ErrInvalidCount, ""},
	{summon.ErrUnknownCurrency, ""},
	{summon.ErrEmptyBanner, ""},
	{summon.ErrInvalidBannerName, ""},
	{catalog.ErrInvalidName, ""},
	{catalog.ErrInvalidField, ""},
	{catalog.ErrInvalidMedia, ""},
	{catalog.ErrInvalidRole, ""},
	{domain.ErrNotFound, "Не найдено"},
}

func userErrorText(err error) (string, bool) {
	for _, ue := range userErrors {
		if !errors.Is(err, ue.err) {
			continue
		}
		if ue.text != "" {
			return ue.text, true
		}
		return capitalize(ue.err.Error()), true
	}
	return "", false
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
