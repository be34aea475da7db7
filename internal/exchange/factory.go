package exchange

import (
	"fmt"
	"strings"
)

// SupportedExchanges - список поддерживаемых бирж
var SupportedExchanges = []string{
	"binance",
	"bybit",
}

// NewExchange создает новый экземпляр биржи по имени
func NewExchange(name string) (Exchange, error) {
	switch strings.ToLower(name) {
	case "binance":
		return NewBinance(), nil
	case "bybit":
		return NewBybit(), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли биржа
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}
