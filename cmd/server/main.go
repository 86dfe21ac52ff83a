package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/shopspring/decimal"

	"github.com/krsoni/homeledger/internal/attachments"
	"github.com/krsoni/homeledger/internal/auth"
	"github.com/krsoni/homeledger/internal/config"
	"github.com/krsoni/homeledger/internal/email"
	"github.com/krsoni/homeledger/internal/household"
	"github.com/krsoni/homeledger/internal/ledger"
	"github.com/krsoni/homeledger/internal/server"
	"github.com/krsoni/homeledger/internal/storage/sqlite"
	"github.com/krsoni/homeledger/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	pricePerLitre, err := decimal.NewFromString(cfg.MilkPricePerLitre)
	if err != nil {
		slog.Error("Invalid MILK_PRICE_PER_LITRE", "value", cfg.MilkPricePerLitre, "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	receipts, err := attachments.NewDiskStore(cfg.AttachmentsDir, cfg.BaseURL)
	if err != nil {
		slog.Error("Failed to initialize attachment store", "error", err)
		os.Exit(1)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	authenticator := auth.NewPasswordAuthenticator(store)

	mailer := email.LogMailer{}
	directory := household.NewDirectory(store)
	households := household.NewService(store, mailer, cfg.BaseURL)
	ledgerSvc := ledger.NewService(store, directory, receipts, pricePerLitre, cfg.DefaultCurrency)

	srv := server.New(authenticator, jwtManager, mailer, households, ledgerSvc, receipts, receipts.Dir())

	slog.Info("Server starting", "address", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv.Handler()); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
