package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DevSender writes outgoing emails to .html files on disk instead of
// delivering them. Useful in local development where no Postmark tokens
// are available.
type DevSender struct {
	dir string
	log *slog.Logger
}

// NewDevSender creates a DevSender that stores emails under dir,
// creating the directory if needed.
func NewDevSender(dir string, log *slog.Logger) (*DevSender, error) {
	if dir == "" {
		dir = "./tmp/emails"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &DevSender{dir: dir, log: log}, nil
}

func (s *DevSender) SendEmail(_ context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return errors.Join(ErrInvalidParams, err)
	}

	name := fmt.Sprintf("%d_%s.html", time.Now().UnixNano(), sanitizeFilename(params.Subject))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(params.BodyHTML), 0o644); err != nil {
		return errors.Join(ErrFailedToSend, err)
	}

	s.log.Info("email written to disk",
		slog.String("to", params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("file", path),
	)
	return nil
}

func sanitizeFilename(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "email"
	}
	return b.String()
}
