// Package notify sends human-readable HTML email notifications about
// decisions and action outcomes. It is the one package in this module that
// reaches into the standard library for its transport: none of the example
// repos in the retrieval pack import a third-party SMTP/mail client, so
// net/smtp is used directly rather than fabricating a dependency (see
// DESIGN.md).
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"
	"time"

	"acaqueue/pkg/models"
)

// Sink is the notification contract: fire-and-forget, errors are for the
// caller to log, never to act on (§4.3 — notifications never fail an action).
type Sink interface {
	NotifyActionSuccess(ctx context.Context, mapping *models.AppMapping, action models.Action, state models.RuntimeState) error
	NotifyActionFailure(ctx context.Context, mapping *models.AppMapping, action models.Action, failureKind string, state models.RuntimeState) error
	NotifyConflict(ctx context.Context, mapping *models.AppMapping) error
	NotifyProcessingAlert(ctx context.Context, mapping *models.AppMapping, alertEmails []string, alert models.ProcessingAlert) error
}

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSink implements Sink over a plain SMTP relay.
type SMTPSink struct {
	cfg SMTPConfig
}

func NewSMTPSink(cfg SMTPConfig) *SMTPSink {
	return &SMTPSink{cfg: cfg}
}

func (s *SMTPSink) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *SMTPSink) auth() smtp.Auth {
	if s.cfg.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
}

// send is the only place this package touches the network; every caller
// treats its error as logged-and-swallowed.
func (s *SMTPSink) send(ctx context.Context, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return nil
	}

	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(htmlBody)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr(), s.auth(), s.cfg.From, to, msg.Bytes())
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("notify: send mail: %w", err)
		}
		return nil
	}
}

func (s *SMTPSink) NotifyActionSuccess(ctx context.Context, mapping *models.AppMapping, action models.Action, state models.RuntimeState) error {
	subject := fmt.Sprintf("ACA %s: %s", action, mapping.ContainerApp)
	body := renderBody(mapping, action, "Success", state, true)
	return s.send(ctx, mapping.NotifyEmails, subject, body)
}

func (s *SMTPSink) NotifyActionFailure(ctx context.Context, mapping *models.AppMapping, action models.Action, failureKind string, state models.RuntimeState) error {
	subject := fmt.Sprintf("ACA %s FAILED: %s", action, mapping.ContainerApp)
	body := renderBody(mapping, action, "Failed: "+failureKind, state, action == models.ActionRestart)
	return s.send(ctx, mapping.NotifyEmails, subject, body)
}

func (s *SMTPSink) NotifyConflict(ctx context.Context, mapping *models.AppMapping) error {
	subject := fmt.Sprintf("ACA Restart Skipped - Multi-Queue Conflict: %s", mapping.ContainerApp)
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<p>Restart for <b>%s</b> was skipped: another mapped queue still has active consumers.</p>", html.EscapeString(mapping.ContainerApp))
	fmt.Fprintf(&b, "<p>Resource group: %s<br/>Desired replicas: %d<br/>Timestamp (UTC): %s</p>",
		html.EscapeString(mapping.ResourceGroup), mapping.DesiredReplicas, time.Now().UTC().Format(time.RFC3339))
	b.WriteString("</body></html>")
	return s.send(ctx, mapping.NotifyEmails, subject, b.String())
}

func (s *SMTPSink) NotifyProcessingAlert(ctx context.Context, mapping *models.AppMapping, alertEmails []string, alert models.ProcessingAlert) error {
	subject := fmt.Sprintf("ACA Queue Processing Alert #%d: %s/%s", alert.AlertNumber, mapping.ContainerApp, alert.QueueName)
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<p>Queue <b>%s</b> on app <b>%s</b> has been processing without draining for %s.</p>",
		html.EscapeString(alert.QueueName), html.EscapeString(mapping.ContainerApp), alert.IdleDuration.Round(time.Second))
	fmt.Fprintf(&b, "<p>Resource group: %s<br/>Timestamp (UTC): %s</p>",
		html.EscapeString(mapping.ResourceGroup), time.Now().UTC().Format(time.RFC3339))
	b.WriteString("</body></html>")
	to := append(append([]string{}, mapping.NotifyEmails...), alertEmails...)
	return s.send(ctx, to, subject, b.String())
}

func renderBody(mapping *models.AppMapping, action models.Action, result string, state models.RuntimeState, includeHistory bool) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<p>Action <b>%s</b> for app <b>%s</b>: %s</p>", action, html.EscapeString(mapping.ContainerApp), html.EscapeString(result))
	fmt.Fprintf(&b, "<p>Resource group: %s<br/>Desired replicas: %d<br/>Timestamp (UTC): %s</p>",
		html.EscapeString(mapping.ResourceGroup), mapping.DesiredReplicas, time.Now().UTC().Format(time.RFC3339))

	if includeHistory {
		fmt.Fprintf(&b, "<p>Restart attempt: %d / %d</p>", state.RestartAttemptCount, mapping.MaxRestartAttempts)
		rows := state.LastNRestarts(5)
		if len(rows) > 0 {
			b.WriteString("<table border=\"1\" cellpadding=\"4\"><tr><th>Timestamp</th><th>Reason</th><th>Attempt</th><th>Success</th></tr>")
			for _, r := range rows {
				fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%d</td><td>%t</td></tr>",
					r.Timestamp.UTC().Format(time.RFC3339), html.EscapeString(r.Reason), r.AttemptNumber, r.Success)
			}
			b.WriteString("</table>")
		}
	}

	b.WriteString("</body></html>")
	return b.String()
}
