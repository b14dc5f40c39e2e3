// Package gateway models the payment provider's API surface. Only the shape
// of the calls and their results matter here; the wire protocol lives in the
// provider's own client library and is out of scope.
package gateway

import (
	"context"
	"time"
)

// Response is the immediate outcome of a gateway call. Success means the
// request was accepted, not that the money moved: the real outcome arrives
// later as an asynchronous notification.
type Response struct {
	Success      bool
	PSPReference string
	ResultCode   string
	Message      string
	Raw          map[string]string

	// 3-D Secure redirect parameters, set when ResultCode is
	// "RedirectShopper".
	MD        string
	PARequest string
	IssuerURL string
}

// Redirect reports whether the shopper must complete an off-site challenge
// before the authorisation can proceed.
func (r *Response) Redirect() bool {
	return r.ResultCode == "RedirectShopper"
}

// StoredPaymentMethod is one recurring-contract detail on file with the
// provider.
type StoredPaymentMethod struct {
	RecurringDetailReference string
	Variant                  string
	CardSummary              string
	HolderName               string
	CreationDate             time.Time
}

// Gateway is the blocking client for the payment provider. Every call is
// made while holding the owning order's lock, since its result decides a
// state transition that must not race a concurrent notification.
type Gateway interface {
	AuthorizePayment(ctx context.Context, merchantReference string, amount int64, currency, cardToken string) (*Response, error)
	CapturePayment(ctx context.Context, pspReference string, amount int64, currency string) (*Response, error)
	CancelPayment(ctx context.Context, pspReference string) (*Response, error)
	CreditPayment(ctx context.Context, pspReference string, amount int64, currency string) (*Response, error)
	ListStoredPaymentMethods(ctx context.Context, shopperReference string) ([]StoredPaymentMethod, error)
}
