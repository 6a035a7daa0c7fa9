package cache

import "strings"

// RulesKey identifies cached venue trading rules for a symbol.
func RulesKey(symbol string) string {
	return "rules:" + strings.ToUpper(strings.TrimSpace(symbol))
}
