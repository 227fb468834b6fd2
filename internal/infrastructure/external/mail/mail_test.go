package mail

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
)

func TestNewSMTPMailer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{Host: "smtp.example.org", From: "rh@example.org"}},
		{name: "missing host", cfg: Config{From: "rh@example.org"}, wantErr: true},
		{name: "missing sender", cfg: Config{Host: "smtp.example.org"}, wantErr: true},
		{name: "bad tls policy", cfg: Config{Host: "smtp.example.org", From: "rh@example.org", TLS: "sometimes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSMTPMailer(tt.cfg, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSMTPMailer_BuildMessage(t *testing.T) {
	m, err := NewSMTPMailer(Config{Host: "smtp.example.org", From: "rh@example.org", FromName: "RH"}, zap.NewNop())
	require.NoError(t, err)

	email, err := m.buildMessage(&port.Message{
		To:          "awa.diallo@example.org",
		Name:        "Awa Diallo",
		Subject:     "Votre demande de mutation",
		Body:        "Bonjour",
		Attachments: []port.Attachment{{Name: "ordre_mutation.pdf", Content: []byte("%PDF-1.3")}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = email.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "awa.diallo@example.org")
	assert.Contains(t, out, "rh@example.org")
	assert.Contains(t, out, "ordre_mutation.pdf")

	_, err = m.buildMessage(&port.Message{To: "not-an-address"})
	assert.Error(t, err)
}

type countingMailer struct{ sent int }

func (c *countingMailer) Channel() string { return "test" }

func (c *countingMailer) Send(context.Context, *port.Message) error {
	c.sent++
	return nil
}

func TestRateLimitedMailer(t *testing.T) {
	next := &countingMailer{}

	assert.Same(t, next, NewRateLimitedMailer(next, 0, 0))

	limited := NewRateLimitedMailer(next, 1, 1)
	assert.Equal(t, "test", limited.Channel())
	require.NoError(t, limited.Send(context.Background(), &port.Message{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := limited.Send(ctx, &port.Message{})

	assert.Error(t, err)
	assert.Equal(t, 1, next.sent)
}
