package domain

type SourceKind string

const (
	// SourceHostedPage is a payment made through the provider's hosted
	// payment pages; the authorization happens off-site before the shopper
	// returns.
	SourceHostedPage SourceKind = "hosted_page"
	// SourceStoredCard is a tokenized card charged directly.
	SourceStoredCard SourceKind = "stored_card"
	// SourceManualRefundOnly is a method with no programmatic cancel/refund
	// API (e.g. Sofort); refunds happen out of band.
	SourceManualRefundOnly SourceKind = "manual_refund_only"
	SourceOther            SourceKind = "other"
)

// Source describes how a payment is funded. Reference carries the
// method-specific detail: a recurring-contract token for stored cards, the
// brand code for hosted-page payments.
type Source struct {
	Kind      SourceKind
	Reference string
}

func (s Source) RequiresManualRefund() bool {
	return s.Kind == SourceManualRefundOnly
}
