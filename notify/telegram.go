package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"simex/sim"
)

// Notifier best-effort human notification channel. Notify never returns
// an error: failures are logged and must not affect the simulation
// result.
type Notifier interface {
	Notify(text string)
}

// Noop discards all notifications. Used in tests and when no Telegram
// credentials are configured.
type Noop struct{}

func (Noop) Notify(string) {}

// Telegram sends messages to a Telegram chat via the Bot API.
type Telegram struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts a message to the configured chat. Errors are logged and
// swallowed.
func (t *Telegram) Notify(text string) {
	if t.token == "" || t.chatID == "" {
		log.Println("⚠️  Telegram credentials missing, skipping notification")
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	}

	body, _ := json.Marshal(payload)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Printf("⚠️  Telegram notification failed (non-critical): %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️  Telegram API error (non-critical): status %s", resp.Status)
	}
}

// FormatTrade renders a human-readable summary for OPEN and CLOSE trade
// records. UPDATE records return "" and should not be announced.
func FormatTrade(simName string, tr sim.TradeRecord) string {
	switch tr.Type {
	case sim.TradeOpen:
		return fmt.Sprintf("🧪 %s: ✅ OPENED %s position\nSymbol: %s\nEntry: $%.2f\nNotional: $%.2f\nLeverage: %.0fx",
			simName, tr.Side, tr.Symbol, tr.EntryPrice, tr.Notional, tr.Leverage)
	case sim.TradeClose:
		msg := fmt.Sprintf("🧪 %s: 🔒 CLOSED %s position\nSymbol: %s\nEntry: $%.2f\nExit: $%.2f\nPnL: $%.2f",
			simName, tr.Side, tr.Symbol, tr.EntryPrice, tr.ExitPrice, tr.PnL)
		if tr.Reason != "" {
			msg += "\nReason: " + tr.Reason
		}
		return msg
	}
	return ""
}
