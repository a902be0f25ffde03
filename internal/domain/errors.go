package domain

import "errors"

// Ошибки, общие для хранилищ и сценариев.
var (
	ErrNotFound          = errors.New("не найдено")
	ErrInsufficientFunds = errors.New("недостаточно средств")
	ErrNotOwned          = errors.New("персонажа нет в коллекции")
	ErrAlreadySettled    = errors.New("дроп уже рассчитан")
	ErrQuotaExhausted    = errors.New("дневной лимит исчерпан")
	ErrInactive          = errors.New("событие уже завершено")
	ErrCodeUsed          = errors.New("код уже использован")
	ErrPassActive        = errors.New("пропуск уже активен")
	ErrUnknownRarity     = errors.New("неизвестная редкость")
	ErrCacheMiss         = errors.New("ключ отсутствует в кэше")
	ErrAlreadyExists     = errors.New("запись уже существует")
	ErrSettlementQueued  = errors.New("расчёт отложен до сверки")
	ErrForbidden         = errors.New("недостаточно прав")
)
