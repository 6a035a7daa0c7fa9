package domain

import "errors"

var (
	ErrValidation       = errors.New("order: validation failed")
	ErrUserNotFound     = errors.New("order: user not found")
	ErrSymbolNotFound   = errors.New("order: symbol not found")
	ErrFilterNotFound   = errors.New("order: lot size filter not found")
	ErrPriceRequired    = errors.New("order: price required for limit order")
	ErrQuantityTooSmall = errors.New("order: quantity too small")
	ErrAdapter          = errors.New("order: exchange adapter failure")
	ErrPersistence      = errors.New("order: persistence failure")
	ErrAuth             = errors.New("auth: invalid credential")
)
