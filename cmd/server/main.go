package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soko/internal/config"
	"soko/internal/db"
	"soko/internal/handlers"
	"soko/internal/services"
	"soko/internal/store"
	"soko/internal/websocket"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	entries := store.NewEntryStore(database)
	escrows := store.NewEscrowStore(database)
	wallets := store.NewWalletStore(database)
	history := store.NewHistoryStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	ledger := services.NewLedgerService(accounts, entries, history)
	walletService := services.NewWalletService(txRunner, ledger, accounts, wallets, audit, hub, cfg.DefaultCurrency)
	escrowService := services.NewEscrowService(txRunner, ledger, accounts, escrows, walletService, audit, cfg.DefaultCurrency)

	handler := handlers.New(txRunner, cfg, users, accounts, history, admin, audit, walletService, escrowService, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("ledger API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
