package telegram

import (
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"charitybot/internal/dispatch"
)

// classify maps telebot failures onto the dispatch taxonomy. Bad Request
// means the chat id itself is unusable; Forbidden means the recipient shut
// the bot out. Both are permanent. Everything else (floods, timeouts, 5xx)
// is transient and left unwrapped for the caller to retry later.
func classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrNotStartedByUser):
		return fmt.Errorf("%w: %v", dispatch.ErrBlocked, err)
	case errors.Is(err, tele.ErrChatNotFound):
		return fmt.Errorf("%w: %v", dispatch.ErrInvalidRecipient, err)
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return err
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400:
			return fmt.Errorf("%w: %v", dispatch.ErrInvalidRecipient, err)
		case 403:
			return fmt.Errorf("%w: %v", dispatch.ErrBlocked, err)
		}
	}
	return err
}
