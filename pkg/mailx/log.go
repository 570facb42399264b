package mailx

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of delivering them. Used in
// development, and as the stand-in SMS channel until a real gateway is wired.
type LogSender struct {
	logger  *slog.Logger
	channel string
}

// NewLogSender returns a sender that logs under the given channel name
// ("email", "sms").
func NewLogSender(logger *slog.Logger, channel string) *LogSender {
	return &LogSender{logger: logger, channel: channel}
}

func (l *LogSender) Send(_ context.Context, to, subject, body string) error {
	l.logger.Info("outbound message",
		"channel", l.channel,
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}
