package sim

import (
	"encoding/json"
	"strconv"
	"strings"
)

// NormalizeSignal resolves the loosely-shaped upstream decision payload
// into canonical per-symbol intents. The signal may be:
//
//   - an object keyed by symbol: {"BTC": {...}, "ETH": {...}}
//   - an array of decision objects, each carrying a "coin", "asset" or
//     "symbol" field
//   - raw JSON bytes of either shape
//
// Keys are upper-cased for consistent lookup. Entries with missing or
// malformed payloads are dropped; a degraded signal yields fewer
// intents, never an error, because the upstream producer (LLM output)
// is inherently unreliable.
func NormalizeSignal(signal any) map[string]TradeIntent {
	intents := make(map[string]TradeIntent)

	switch v := signal.(type) {
	case nil:
		return intents
	case json.RawMessage:
		return normalizeRaw([]byte(v))
	case []byte:
		return normalizeRaw(v)
	case string:
		return normalizeRaw([]byte(v))
	case map[string]any:
		for key, entry := range v {
			payload, ok := entry.(map[string]any)
			if !ok || payload == nil {
				continue
			}
			symbol := strings.ToUpper(strings.TrimSpace(key))
			if symbol == "" {
				continue
			}
			if intent, ok := parseIntent(symbol, payload); ok {
				intents[symbol] = intent
			}
		}
	case []any:
		for _, entry := range v {
			payload, ok := entry.(map[string]any)
			if !ok || payload == nil {
				continue
			}
			symbol := extractSymbol(payload)
			if symbol == "" {
				continue
			}
			if intent, ok := parseIntent(symbol, payload); ok {
				intents[symbol] = intent
			}
		}
	}

	return intents
}

func normalizeRaw(data []byte) map[string]TradeIntent {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return map[string]TradeIntent{}
	}
	return NormalizeSignal(decoded)
}

// extractSymbol matches the per-asset identifier field of an array-style
// decision object. The upstream producer has used all three names.
func extractSymbol(payload map[string]any) string {
	for _, key := range []string{"coin", "asset", "symbol"} {
		if raw, ok := payload[key]; ok {
			if s, ok := raw.(string); ok {
				return strings.ToUpper(strings.TrimSpace(s))
			}
		}
	}
	return ""
}

func parseIntent(symbol string, payload map[string]any) (TradeIntent, bool) {
	side, ok := parseSide(payload)
	if !ok {
		return TradeIntent{}, false
	}

	return TradeIntent{
		Symbol:       symbol,
		Side:         side,
		Notional:     firstFloat(payload, "notional", "position_size_usd", "size"),
		Leverage:     firstFloat(payload, "leverage"),
		ProfitTarget: firstFloat(payload, "profit_target", "profitTarget", "take_profit"),
		StopLoss:     firstFloat(payload, "stop_loss", "stopLoss"),
	}, true
}

func parseSide(payload map[string]any) (Side, bool) {
	for _, key := range []string{"side", "action", "signal"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "LONG":
			return SideLong, true
		case "SHORT":
			return SideShort, true
		case "HOLD":
			return SideHold, true
		}
	}
	return "", false
}

// firstFloat returns the first parseable numeric value among the aliased
// keys. LLM output carries numbers both as JSON numbers and as strings.
func firstFloat(payload map[string]any, keys ...string) float64 {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok || raw == nil {
			continue
		}
		if f, ok := toFloat(raw); ok {
			return f
		}
	}
	return 0
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}
