package notify

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	s.logger.InfoContext(ctx, "notification",
		"id", msg.ID,
		"to", msg.To,
		"template", string(msg.Template),
		"subject", msg.Subject,
		"attachments", names,
	)
	return nil
}
