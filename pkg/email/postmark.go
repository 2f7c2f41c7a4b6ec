package email

import (
	"context"
	"errors"

	"github.com/mrz1836/postmark"
)

type postmarkSender struct {
	client       *postmark.Client
	senderEmail  string
	supportEmail string
}

// NewPostmarkSender returns a Sender backed by the Postmark API.
// The sender address appears in the From header and the support address
// in Reply-To, so customer replies land in the support inbox.
func NewPostmarkSender(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" || cfg.PostmarkAccountToken == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("postmark tokens must be set"))
	}
	if !emailRegex.MatchString(cfg.SenderEmail) {
		return nil, errors.Join(ErrInvalidConfig, errors.New("invalid sender email address"))
	}
	if !emailRegex.MatchString(cfg.SupportEmail) {
		return nil, errors.Join(ErrInvalidConfig, errors.New("invalid support email address"))
	}

	return &postmarkSender{
		client:       postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		senderEmail:  cfg.SenderEmail,
		supportEmail: cfg.SupportEmail,
	}, nil
}

// MustNewPostmarkSender is like NewPostmarkSender but panics on invalid config.
func MustNewPostmarkSender(cfg Config) Sender {
	s, err := NewPostmarkSender(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *postmarkSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return errors.Join(ErrInvalidParams, err)
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.senderEmail,
		ReplyTo:    s.supportEmail,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSend, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSend, errors.New(resp.Message))
	}

	return nil
}
