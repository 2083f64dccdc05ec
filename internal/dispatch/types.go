package dispatch

import (
	"context"
	"errors"
)

// Mode selects the recipient group for a broadcast.
type Mode string

const (
	ModeAll          Mode = "all"
	ModeSubscribed   Mode = "subscribed"
	ModeUnsubscribed Mode = "unsubscribed"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeAll, ModeSubscribed, ModeUnsubscribed:
		return true
	}
	return false
}

// Recipient is a user the message channel can reach. Banned is monotonic:
// only failure classification sets it, nothing in this package clears it.
type Recipient struct {
	ID         int64
	ChatID     int64
	Subscribed bool
	Banned     bool
}

// Message is one explicit recipient/text pair.
type Message struct {
	RecipientID int64
	Text        string
}

// Request describes one dispatch. Either Targets is set (explicit list mode)
// or Mode+Text are (broadcast mode).
type Request struct {
	Mode    Mode
	Text    string
	Targets []Message
}

// ErrorKind classifies one failed send.
type ErrorKind string

const (
	KindInvalidRecipient ErrorKind = "invalid_recipient"
	KindBlocked          ErrorKind = "blocked"
	KindTransient        ErrorKind = "transient"
	KindNotFound         ErrorKind = "not_found"
)

// Outcome is the per-recipient result of one send attempt.
type Outcome struct {
	RecipientID int64
	Succeeded   bool
	Kind        ErrorKind
	Detail      string
}

// Channel delivers one text message to one chat. Implementations wrap
// permanent failures in ErrInvalidRecipient or ErrBlocked; anything else is
// treated as transient.
type Channel interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// RecipientStore is the durable side of dispatch. Recipients re-queries
// current state on every call. MarkBanned is a single-row, independently
// committed mutation.
type RecipientStore interface {
	Recipients(ctx context.Context, mode Mode) ([]Recipient, error)
	RecipientByID(ctx context.Context, id int64) (Recipient, error)
	MarkBanned(ctx context.Context, id int64) error
}

var (
	// ErrNotFound marks an explicit recipient id with no matching row.
	ErrNotFound = errors.New("dispatch: recipient not found")
	// ErrInvalidRecipient marks a permanently unreachable chat address.
	ErrInvalidRecipient = errors.New("dispatch: invalid recipient address")
	// ErrBlocked marks a recipient that refused the channel.
	ErrBlocked = errors.New("dispatch: recipient blocked the channel")
)
