package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"go.uber.org/zap"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// NoOpProvider is used when SMTP is not configured. It only logs.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.log.Debug("email suppressed",
		zap.Strings("to", to),
		zap.String("subject", subject),
	)
	return nil
}

// Render executes an HTML body template against data.
func Render(body string, data any) (string, error) {
	t, err := template.New("body").Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var out bytes.Buffer
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return out.String(), nil
}

// RenderSubject executes a plain-text subject template; subjects are not HTML escaped.
func RenderSubject(subject string, data any) (string, error) {
	t, err := texttemplate.New("subject").Parse(subject)
	if err != nil {
		return "", fmt.Errorf("parse subject: %w", err)
	}
	var out bytes.Buffer
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("execute subject: %w", err)
	}
	return out.String(), nil
}

// Validate reports whether body parses as an HTML template.
func Validate(body string) error {
	_, err := template.New("body").Parse(body)
	return err
}
