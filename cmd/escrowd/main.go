package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"escrowd/config"
	"escrowd/core/events"
	"escrowd/core/state"
	"escrowd/core/types"
	"escrowd/crypto"
	"escrowd/native/escrow"
	"escrowd/observability/logging"
	"escrowd/rpc"
	"escrowd/storage"
)

const envVar = "ESCROWD_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("escrowd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := applyGenesis(manager, cfg.Genesis); err != nil {
		logger.Error("Failed to apply genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}

	eventLog := events.NewLog()
	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(eventLog)

	server := rpc.NewServer(engine, manager, eventLog)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting JSON-RPC server", slog.String("address", cfg.RPCAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", slog.Any("error", err))
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// applyGenesis pre-funds the configured accounts exactly once per data
// directory.
func applyGenesis(manager *state.Manager, alloc []config.GenesisAccount) error {
	if len(alloc) == 0 {
		return nil
	}
	applied, err := manager.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for _, entry := range alloc {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(entry.Address))
		if err != nil {
			return fmt.Errorf("genesis address %q: %w", entry.Address, err)
		}
		account := (&types.Account{}).EnsureBalances()
		if trimmed := strings.TrimSpace(entry.Native); trimmed != "" {
			amount, ok := new(big.Int).SetString(trimmed, 10)
			if !ok || amount.Sign() < 0 {
				return fmt.Errorf("genesis native amount %q for %s is invalid", entry.Native, entry.Address)
			}
			account.BalanceNative = amount
		}
		if trimmed := strings.TrimSpace(entry.Token); trimmed != "" {
			amount, ok := new(big.Int).SetString(trimmed, 10)
			if !ok || amount.Sign() < 0 {
				return fmt.Errorf("genesis token amount %q for %s is invalid", entry.Token, entry.Address)
			}
			account.BalanceToken = amount
		}
		if err := manager.PutAccount(addr.Bytes(), account); err != nil {
			return err
		}
	}
	return manager.MarkGenesisApplied()
}
