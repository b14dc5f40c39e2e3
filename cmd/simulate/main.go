// The simulate binary replays the race this system exists for: a redirect
// return and an AUTHORISATION webhook arriving for the same order at the
// same instant, followed by a duplicate delivery and the eventual CAPTURE.
// It runs fully in memory.
package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"adyen-notify/internal/domain"
	"adyen-notify/internal/gateway"
	"adyen-notify/internal/lock"
	"adyen-notify/internal/logging"
	"adyen-notify/internal/repo/inmemory"
	"adyen-notify/internal/service"
)

func main() {
	logger := logging.New()
	defer logger.Sync()

	ctx := context.Background()

	orderRepo := inmemory.NewOrderRepo()
	paymentRepo := inmemory.NewPaymentRepo()
	notificationRepo := inmemory.NewNotificationRepo()
	logRepo := inmemory.NewLogEntryRepo()
	redirectRepo := inmemory.NewRedirectChallengeRepo(paymentRepo)
	txm := inmemory.TxManager{}
	mutex := lock.NewKeyedMutex(2 * time.Second)

	gw := gateway.NewMockGateway()
	gw.RefuseRate = 10
	gw.SlowRate = 10

	processor := service.NewProcessor(paymentRepo, orderRepo, logRepo, txm, logger)
	notificationSvc := service.NewNotificationService(notificationRepo, orderRepo, paymentRepo, mutex, processor, logger)
	paymentSvc := service.NewPaymentService(paymentRepo, orderRepo, logRepo, redirectRepo, txm, gw, mutex, logger)
	orderSvc := service.NewOrderService(orderRepo, paymentRepo, redirectRepo, txm, paymentSvc, mutex, logger)

	fmt.Println("--- STARTING SIMULATION (10 ORDERS) ---")
	for i := 0; i < 10; i++ {
		number := fmt.Sprintf("R%06d", 100000+i)
		order, err := orderSvc.CreateOrder(ctx, number, 2200, "EUR")
		if err != nil {
			fmt.Printf("[%d] create failed: %v\n", i+1, err)
			continue
		}

		// Alternate the source kinds: hosted-page payments authorise off-site
		// and race the redirect return, stored cards hit the mock gateway
		// directly and feel its refusals and stalls.
		src := domain.Source{Kind: domain.SourceHostedPage, Reference: "amex"}
		if i%2 == 1 {
			src = domain.Source{Kind: domain.SourceStoredCard, Reference: fmt.Sprintf("recurring-%03d", i)}
		}

		payment, err := orderSvc.StartCheckout(ctx, order.ID, src)
		if err != nil {
			fmt.Printf("[%d] checkout failed for %s: %v\n", i+1, number, err)
			continue
		}

		psp := fmt.Sprintf("79144830132550%02d", i)
		authParams := map[string]string{
			"pspReference":      psp,
			"merchantReference": number,
			"eventCode":         "AUTHORISATION",
			"success":           "true",
			"value":             "2200",
			"currency":          "EUR",
		}

		if src.Kind == domain.SourceHostedPage {
			// The webhook and the shopper's redirect return race each other.
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				report("webhook", notificationSvc.Handle(ctx, authParams))
			}()
			go func() {
				defer wg.Done()
				report("redirect", orderSvc.FinalizeRedirect(ctx, number, psp, "AUTHORISED"))
			}()
			wg.Wait()
		} else {
			report("webhook", notificationSvc.Handle(ctx, authParams))
		}

		// The provider typically redelivers the auth notification once.
		report("duplicate", notificationSvc.Handle(ctx, authParams))

		captureParams := map[string]string{
			"pspReference":      fmt.Sprintf("86144830132792%02d", i),
			"originalReference": psp,
			"merchantReference": number,
			"eventCode":         "CAPTURE",
			"success":           "true",
			"value":             "2200",
			"currency":          "EUR",
		}
		report("capture", notificationSvc.Handle(ctx, captureParams))

		fresh, _ := paymentRepo.FindByID(ctx, payment.ID)
		entries, _ := logRepo.FindByPayment(ctx, payment.ID)
		fmt.Printf("[%d] %s -> payment state: %s, response code: %s, log entries: %d\n",
			i+1, number, fresh.State, fresh.ResponseCode, len(entries))
		fmt.Println("---------------------------------------------------")
	}

	fmt.Printf("stored notifications: %d\n", notificationRepo.Count())
}

func report(label string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateNotification):
		fmt.Printf("    %s: duplicate, acknowledged\n", label)
	case errors.Is(err, lock.ErrLockFailed):
		fmt.Printf("    %s: order locked, will be retried\n", label)
	default:
		fmt.Printf("    %s: %v\n", label, err)
	}
}
