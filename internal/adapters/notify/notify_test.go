package notify

import (
	"context"
	"errors"
	"testing"

	"cryptoSignalBot/internal/domain"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockSender struct {
	sent []tgbot.MessageConfig
	err  error
}

func (m *mockSender) Send(c tgbot.Chattable) (tgbot.Message, error) {
	if m.err != nil {
		return tgbot.Message{}, m.err
	}
	m.sent = append(m.sent, c.(tgbot.MessageConfig))
	return tgbot.Message{}, nil
}

func TestTelegram_Notify(t *testing.T) {
	sender := &mockSender{}
	logger := &mockLogger{}
	n := newTelegram(sender, 42, domain.SeverityHigh, logger)
	ctx := context.Background()

	n.Notify(ctx, domain.SeverityMedium, "Rate limited", "")
	assert.Empty(t, sender.sent)

	n.Notify(ctx, domain.SeverityCritical, "Extreme stop triggered", "3 stop losses in 30 minutes")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, "[CRITICAL] Extreme stop triggered\n3 stop losses in 30 minutes", sender.sent[0].Text)

	sender.err = errors.New("network down")
	n.Notify(ctx, domain.SeverityHigh, "Order failed", "")
	assert.Equal(t, []string{"Alert delivery failed"}, logger.errorMsgs)
}

func TestTelegram_DefaultsMinSeverity(t *testing.T) {
	n := newTelegram(&mockSender{}, 1, domain.Severity("bogus"), &mockLogger{})
	assert.Equal(t, domain.SeverityHigh, n.minSeverity)

	_, err := NewTelegram("", 0, domain.SeverityHigh, &mockLogger{})
	assert.Error(t, err)
}

func TestFanout(t *testing.T) {
	logger := &mockLogger{}
	sender := &mockSender{}
	f := Fanout{NewLogNotifier(logger), newTelegram(sender, 7, domain.SeverityLow, logger)}

	f.Notify(context.Background(), domain.SeverityLow, "Bot halted", "manual")
	assert.Equal(t, []string{"ALERT: Bot halted"}, logger.warnMsgs)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "[LOW] Bot halted\nmanual", sender.sent[0].Text)
}
