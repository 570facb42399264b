// Package mailx delivers one-time codes and reset links to users. It
// deliberately knows nothing about auth; callers hand it a recipient and a
// rendered message.
package mailx

import "context"

// Sender delivers a single message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, to, subject, body string) error

func (f SenderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}
