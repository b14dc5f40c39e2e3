package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventCode string

const (
	EventAuthorisation  EventCode = "AUTHORISATION"
	EventCapture        EventCode = "CAPTURE"
	EventCancellation   EventCode = "CANCELLATION"
	EventRefund         EventCode = "REFUND"
	EventCancelOrRefund EventCode = "CANCEL_OR_REFUND"
)

// ErrMalformedNotification is returned when the posted fields cannot be
// mapped into a Notification at all.
var ErrMalformedNotification = errors.New("malformed notification")

// Notification is one inbound event from the provider. Records are
// append-only; (PSPReference, EventCode, Success) is the dedup key enforced
// by the store, so an exact redelivery can never be inserted twice.
type Notification struct {
	ID                uuid.UUID
	PSPReference      string
	OriginalReference string
	MerchantReference string
	EventCode         EventCode
	Success           bool
	Value             int64
	Currency          string
	EventDate         time.Time
	Reason            string
	AdditionalData    map[string]string
	Processed         bool
	CreatedAt         time.Time
}

// FollowUp reports whether this event modifies an earlier transaction
// (capture of an authorisation, refund of a capture).
func (n *Notification) FollowUp() bool {
	return n.OriginalReference != ""
}

// BuildNotification maps the flat key/value fields the provider posts into a
// Notification. Keys of the form "additionalData.x" are collected into
// AdditionalData. Unknown event codes are kept verbatim; the provider's
// event catalog grows independently of our releases.
func BuildNotification(params map[string]string) (*Notification, error) {
	psp := params["pspReference"]
	code := params["eventCode"]
	if psp == "" || code == "" {
		return nil, fmt.Errorf("%w: pspReference and eventCode are required", ErrMalformedNotification)
	}

	n := &Notification{
		ID:                uuid.New(),
		PSPReference:      psp,
		OriginalReference: params["originalReference"],
		MerchantReference: params["merchantReference"],
		EventCode:         EventCode(code),
		Success:           params["success"] == "true",
		Currency:          params["currency"],
		Reason:            params["reason"],
		AdditionalData:    map[string]string{},
		CreatedAt:         time.Now(),
	}

	if v := params["value"]; v != "" {
		value, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad value %q", ErrMalformedNotification, v)
		}
		n.Value = value
	}
	if d := params["eventDate"]; d != "" {
		when, err := time.Parse(time.RFC3339, d)
		if err != nil {
			return nil, fmt.Errorf("%w: bad eventDate %q", ErrMalformedNotification, d)
		}
		n.EventDate = when
	}
	for k, v := range params {
		if rest, ok := strings.CutPrefix(k, "additionalData."); ok {
			n.AdditionalData[rest] = v
		}
	}
	return n, nil
}
