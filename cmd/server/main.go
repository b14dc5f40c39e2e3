package main

import (
	"context"

	"adyen-notify/internal/config"
	"adyen-notify/internal/database"
	"adyen-notify/internal/gateway"
	"adyen-notify/internal/lock"
	"adyen-notify/internal/logging"
	"adyen-notify/internal/repo"
	"adyen-notify/internal/server"
	"adyen-notify/internal/service"
	"adyen-notify/internal/worker"
)

func main() {
	logger := logging.New()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalw("configuration invalid", "error", err)
	}

	ctx := context.Background()

	db, err := database.NewPostgres(cfg.DB)
	if err != nil {
		logger.Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalw("migrations failed", "error", err)
	}

	notificationRepo := repo.NewNotificationRepo(db)
	orderRepo := repo.NewOrderRepo(db)
	paymentRepo := repo.NewPaymentRepo(db)
	logRepo := repo.NewLogEntryRepo(db)
	redirectRepo := repo.NewRedirectChallengeRepo(db)

	txm := database.NewTxManager(db)
	mutex := lock.NewAdvisoryMutex(db, cfg.LockTimeout)
	gw := gateway.NewMockGateway()

	processor := service.NewProcessor(paymentRepo, orderRepo, logRepo, txm, logger)
	notificationSvc := service.NewNotificationService(notificationRepo, orderRepo, paymentRepo, mutex, processor, logger)
	paymentSvc := service.NewPaymentService(paymentRepo, orderRepo, logRepo, redirectRepo, txm, gw, mutex, logger)
	orderSvc := service.NewOrderService(orderRepo, paymentRepo, redirectRepo, txm, paymentSvc, mutex, logger)

	reprocessor := worker.NewReprocessWorker(notificationRepo, orderRepo, mutex, processor, cfg.ReprocessInterval, logger)
	go reprocessor.Run(ctx)

	srv := server.New(cfg, notificationSvc, orderSvc, database.NewService(db), logger)
	logger.Infow("listening", "addr", cfg.ListenAddr)
	if err := srv.Run(); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
}
