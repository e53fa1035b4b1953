// Package notification sends run summaries to operator chat or webhook
// services through shoutrrr service URLs.
package notification

import (
	"context"
	"io"
	stdlog "log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/tphakala/syncmigrate/internal/errors"
	"github.com/tphakala/syncmigrate/internal/logger"
	"github.com/tphakala/syncmigrate/internal/privacy"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Sender delivers a message to every configured service.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier sends titled messages through a Sender.
type Notifier struct {
	sender Sender
	urls   int
	log    logger.Logger
}

// New builds a notifier for the given shoutrrr service URLs.
func New(urls []string, timeout time.Duration, log logger.Logger) (*Notifier, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(slices.Clone(urls)...)
	if err != nil {
		return nil, errors.New(privacy.ScrubError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("operation", "create_sender").
			Build()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sender.Timeout = timeout
	sender.SetLogger(stdlog.New(io.Discard, "", 0))

	return NewWithSender(sender, len(urls), log), nil
}

// NewWithSender wraps an existing sender.
func NewWithSender(sender Sender, urls int, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Notifier{sender: sender, urls: urls, log: log.Module("notification")}
}

// Send delivers body with the given title. Every failing service is
// reported in the returned error.
func (n *Notifier) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}

	start := time.Now()
	var failed []error
	for _, err := range n.sender.Send(body, &params) {
		if err != nil {
			failed = append(failed, privacy.ScrubError(err))
		}
	}

	if len(failed) > 0 {
		return errors.New(errors.Join(failed...)).
			Component("notification").
			Category(errors.CategoryNetwork).
			Context("operation", "send_notification").
			Context("failed_services", len(failed)).
			Timing("send_notification", time.Since(start)).
			Build()
	}

	n.log.Info("notification sent",
		logger.String("title", title),
		logger.Int("services", n.urls),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}
