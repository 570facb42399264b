package mailx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	msg := string(buildMessage("noreply@example.com", "alice@example.com", "Your code", "123456"))

	require.Contains(t, msg, "From: noreply@example.com\r\n")
	require.Contains(t, msg, "To: alice@example.com\r\n")
	require.Contains(t, msg, "Subject: Your code\r\n")
	require.Contains(t, msg, "\r\n\r\n123456")
}

func TestNewSMTPSenderValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := NewSMTPSender(SMTPConfig{Port: 587, From: "a@b.c"})
	require.Error(t, err)

	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587})
	require.Error(t, err)

	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "a@b.c"})
	require.NoError(t, err)
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	ctx := context.Background()

	require.NoError(t, rec.Send(ctx, "alice@example.com", "hi", "one"))
	require.NoError(t, rec.Send(ctx, "bob@example.com", "hi", "two"))

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "bob@example.com", rec.Last().To)

	boom := errors.New("smtp down")
	rec.FailWith(boom)
	require.ErrorIs(t, rec.Send(ctx, "carol@example.com", "hi", "three"), boom)
	require.Len(t, rec.Messages(), 2)
}
