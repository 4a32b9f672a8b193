package notify

import (
	"context"
	"fmt"
	"strings"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

var severityRank = map[domain.Severity]int{
	domain.SeverityLow:      0,
	domain.SeverityMedium:   1,
	domain.SeverityHigh:     2,
	domain.SeverityCritical: 3,
}

// LogNotifier writes alerts to the logger. It is the fallback when no chat
// transport is configured.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the alert at Warn level.
func (n *LogNotifier) Notify(ctx context.Context, severity domain.Severity, title, detail string) {
	n.logger.Warn(ctx, "ALERT: "+title, map[string]interface{}{"severity": severity, "detail": detail})
}

// sender is the subset of tgbot.BotAPI used to deliver messages.
type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram sends alerts at or above a minimum severity to a chat.
type Telegram struct {
	bot         sender
	chatID      int64
	minSeverity domain.Severity
	logger      ports.Logger
}

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, chatID int64, minSeverity domain.Severity, logger ports.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	if logger == nil {
		return nil, errors.New("missing required dependencies for Telegram notifier")
	}
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "connect telegram bot")
	}
	return newTelegram(bot, chatID, minSeverity, logger), nil
}

func newTelegram(bot sender, chatID int64, minSeverity domain.Severity, logger ports.Logger) *Telegram {
	if _, ok := severityRank[minSeverity]; !ok {
		minSeverity = domain.SeverityHigh
	}
	return &Telegram{bot: bot, chatID: chatID, minSeverity: minSeverity, logger: logger}
}

// Notify sends the alert. Delivery failures are logged, never returned.
func (t *Telegram) Notify(ctx context.Context, severity domain.Severity, title, detail string) {
	if severityRank[severity] < severityRank[t.minSeverity] {
		return
	}
	msg := tgbot.NewMessage(t.chatID, FormatAlert(severity, title, detail))
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error(ctx, errors.Wrap(err, "send telegram alert"), "Alert delivery failed", map[string]interface{}{"title": title})
	}
}

// FormatAlert renders an alert as plain text.
func FormatAlert(severity domain.Severity, title, detail string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", strings.ToUpper(string(severity)), title)
	if detail != "" {
		sb.WriteString("\n")
		sb.WriteString(detail)
	}
	return sb.String()
}

// Fanout delivers every alert to all notifiers.
type Fanout []ports.Notifier

// Notify forwards to each notifier in order.
func (f Fanout) Notify(ctx context.Context, severity domain.Severity, title, detail string) {
	for _, n := range f {
		n.Notify(ctx, severity, title, detail)
	}
}
