package service

import (
	"context"
	"errors"
	"fmt"

	"adyen-notify/internal/domain"
	"adyen-notify/internal/gateway"
)

// gatewayStrategy is the per-source-kind capability set. Each payment source
// variant gets its own implementation instead of type predicates scattered
// through the service.
type gatewayStrategy interface {
	authorize(ctx context.Context, p *domain.Payment, merchantReference string) (*gateway.Response, error)
	capture(ctx context.Context, p *domain.Payment) (*gateway.Response, error)
	cancel(ctx context.Context, p *domain.Payment) (*gateway.Response, error)
	credit(ctx context.Context, p *domain.Payment, amount int64) (*gateway.Response, error)
}

func strategyFor(kind domain.SourceKind, gw gateway.Gateway) gatewayStrategy {
	switch kind {
	case domain.SourceHostedPage:
		return hostedPageStrategy{gw: gw}
	case domain.SourceStoredCard:
		return storedCardStrategy{hostedPageStrategy{gw: gw}}
	case domain.SourceManualRefundOnly:
		return manualRefundStrategy{hostedPageStrategy{gw: gw}}
	default:
		return unsupportedStrategy{kind: kind}
	}
}

// hostedPageStrategy covers payments authorised off-site on the provider's
// hosted pages. Authorize returns a synthetic success: the real
// authorisation already happened before the shopper came back, and its
// confirmation arrives as a notification.
type hostedPageStrategy struct {
	gw gateway.Gateway
}

func (s hostedPageStrategy) authorize(ctx context.Context, p *domain.Payment, merchantReference string) (*gateway.Response, error) {
	return &gateway.Response{
		Success:    true,
		ResultCode: "Authorised",
		Message:    "successful hpp payment",
	}, nil
}

func (s hostedPageStrategy) capture(ctx context.Context, p *domain.Payment) (*gateway.Response, error) {
	if p.ResponseCode == "" {
		return nil, errors.New("payment has no provider reference to capture")
	}
	return s.gw.CapturePayment(ctx, p.ResponseCode, p.Amount, p.Currency)
}

func (s hostedPageStrategy) cancel(ctx context.Context, p *domain.Payment) (*gateway.Response, error) {
	if p.ResponseCode == "" {
		return nil, errors.New("payment has no provider reference to cancel")
	}
	return s.gw.CancelPayment(ctx, p.ResponseCode)
}

func (s hostedPageStrategy) credit(ctx context.Context, p *domain.Payment, amount int64) (*gateway.Response, error) {
	if p.ResponseCode == "" {
		return nil, errors.New("payment has no provider reference to credit")
	}
	return s.gw.CreditPayment(ctx, p.ResponseCode, amount, p.Currency)
}

// storedCardStrategy charges a tokenized card directly; only authorize
// differs from the hosted-page flow.
type storedCardStrategy struct {
	hostedPageStrategy
}

func (s storedCardStrategy) authorize(ctx context.Context, p *domain.Payment, merchantReference string) (*gateway.Response, error) {
	return s.gw.AuthorizePayment(ctx, merchantReference, p.Amount, p.Currency, p.Source.Reference)
}

// manualRefundStrategy is for methods whose refunds happen out of band.
// Captures work normally; cancel is intercepted by the payment service
// before any gateway call.
type manualRefundStrategy struct {
	hostedPageStrategy
}

type unsupportedStrategy struct {
	kind domain.SourceKind
}

func (s unsupportedStrategy) authorize(ctx context.Context, p *domain.Payment, merchantReference string) (*gateway.Response, error) {
	return nil, s.err("authorize")
}

func (s unsupportedStrategy) capture(ctx context.Context, p *domain.Payment) (*gateway.Response, error) {
	return nil, s.err("capture")
}

func (s unsupportedStrategy) cancel(ctx context.Context, p *domain.Payment) (*gateway.Response, error) {
	return nil, s.err("cancel")
}

func (s unsupportedStrategy) credit(ctx context.Context, p *domain.Payment, amount int64) (*gateway.Response, error) {
	return nil, s.err("credit")
}

func (s unsupportedStrategy) err(op string) error {
	return fmt.Errorf("%s not supported for source kind %q", op, s.kind)
}
