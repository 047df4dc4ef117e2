package sender

import (
	"context"
	"fmt"

	"github.com/addisbazaar/platform/internal/domain"
)

// Sender delivers a one-time code over a single channel. Implementations
// guarantee dispatch, not delivery.
type Sender interface {
	Send(ctx context.Context, identifier domain.Identifier, code string, purpose domain.OtpPurpose) error
}

// Dispatcher routes a code to the channel matching the identifier kind:
// SMS for phone numbers, email otherwise.
type Dispatcher struct {
	sms   Sender
	email Sender
}

// NewDispatcher creates a dispatcher over the given channel senders.
func NewDispatcher(sms, email Sender) *Dispatcher {
	return &Dispatcher{sms: sms, email: email}
}

// Send dispatches the code via the channel matching the identifier kind.
func (d *Dispatcher) Send(ctx context.Context, identifier domain.Identifier, code string, purpose domain.OtpPurpose) error {
	switch identifier.Kind {
	case domain.IdentifierPhone:
		return d.sms.Send(ctx, identifier, code, purpose)
	case domain.IdentifierEmail:
		return d.email.Send(ctx, identifier, code, purpose)
	default:
		return fmt.Errorf("no delivery channel for identifier kind %q", identifier.Kind)
	}
}

// messageFor renders the user-facing text for a code and purpose.
func messageFor(code string, purpose domain.OtpPurpose) string {
	switch purpose {
	case domain.PurposePasswordReset:
		return fmt.Sprintf("Your AddisBazaar password reset code is %s. It expires in 10 minutes.", code)
	default:
		return fmt.Sprintf("Your AddisBazaar verification code is %s. It expires in 10 minutes.", code)
	}
}
