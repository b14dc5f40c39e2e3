package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"adyen-notify/internal/lock"
	"adyen-notify/internal/repo"
	"adyen-notify/internal/service"
)

const defaultBatchSize = 50

// ReprocessWorker sweeps notifications that were stored but never applied,
// typically because the order lock timed out while a redirect return held
// it. The provider's own retries cover most of these; the sweep covers the
// rest, e.g. when retries are exhausted during a long incident.
type ReprocessWorker struct {
	notifications repo.NotificationRepo
	orders        repo.OrderRepo
	mutex         lock.OrderMutex
	processor     *service.Processor
	interval      time.Duration
	batchSize     int
	logger        *zap.SugaredLogger
}

func NewReprocessWorker(
	notifications repo.NotificationRepo,
	orders repo.OrderRepo,
	mutex lock.OrderMutex,
	processor *service.Processor,
	interval time.Duration,
	logger *zap.SugaredLogger,
) *ReprocessWorker {
	return &ReprocessWorker{
		notifications: notifications,
		orders:        orders,
		mutex:         mutex,
		processor:     processor,
		interval:      interval,
		batchSize:     defaultBatchSize,
		logger:        logger,
	}
}

func (w *ReprocessWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Infow("reprocess worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Errorw("reprocess sweep failed", "error", err)
			}
		}
	}
}

// Sweep applies one batch of unprocessed notifications. Orders that are
// still locked are skipped and picked up on a later sweep.
func (w *ReprocessWorker) Sweep(ctx context.Context) error {
	pending, err := w.notifications.FindUnprocessed(ctx, w.batchSize)
	if err != nil {
		return err
	}

	for i := range pending {
		n := &pending[i]
		order, err := w.orders.FindByNumber(ctx, n.MerchantReference)
		if err != nil {
			return err
		}
		if order == nil {
			w.logger.Warnw("unprocessed notification references unknown order",
				"merchant_reference", n.MerchantReference, "psp_reference", n.PSPReference)
			if err := w.notifications.MarkProcessed(ctx, nil, n.ID); err != nil {
				return err
			}
			continue
		}

		err = w.mutex.WithLock(ctx, order.ID, func(ctx context.Context) error {
			if err := w.processor.Process(ctx, n); err != nil {
				return err
			}
			return w.notifications.MarkProcessed(ctx, nil, n.ID)
		})
		if errors.Is(err, lock.ErrLockFailed) {
			w.logger.Infow("order still locked, deferring notification",
				"order", n.MerchantReference, "psp_reference", n.PSPReference)
			continue
		}
		if err != nil {
			w.logger.Errorw("reprocessing notification failed",
				"psp_reference", n.PSPReference, "error", err)
		}
	}
	return nil
}
