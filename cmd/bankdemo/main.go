// Command bankdemo runs the bank-account example against a real backend.
// It opens an account, deposits and withdraws money, then prints the
// materialized ledger view. The backend is selected with BANKDEMO_BACKEND
// (memory, sqlite or postgres); kafka publication is enabled with
// BANKDEMO_KAFKA=1.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/cqrs-es/adapters/memory"
	"github.com/example/cqrs-es/adapters/postgres"
	"github.com/example/cqrs-es/adapters/sqlite"
	"github.com/example/cqrs-es/cqrs"
	"github.com/example/cqrs-es/internal/banktest"
	"github.com/example/cqrs-es/kafka"
	"github.com/example/cqrs-es/persist"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("bankdemo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	eventRepo, viewRepo, cleanup, err := buildRepositories(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store := banktest.NewStore(eventRepo).WithStorageMethod(persist.SnapshotSource(10))
	ledger := persist.NewGenericQuery[*banktest.AccountView, banktest.Event](viewRepo, banktest.NewAccountView).
		WithLogger(logger)

	queries := []cqrs.Query[banktest.Event]{ledger}
	if os.Getenv("BANKDEMO_KAFKA") == "1" {
		cfg, err := kafka.LoadConfigFromEnv()
		if err != nil {
			return err
		}
		publisher := kafka.NewPublisher[banktest.Event](cfg, banktest.AggregateType)
		defer publisher.Close()
		queries = append(queries, publisher)
		logger.Info("publishing events", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}

	framework := cqrs.NewFramework[*banktest.BankAccount, banktest.Command, banktest.Event, banktest.Services](
		store,
		banktest.Services{Atm: &banktest.StubAtmClient{}},
		queries...,
	).WithLogger(logger)

	accountID := "demo-account"
	metadata := map[string]string{"source": "bankdemo"}

	commands := []banktest.Command{
		banktest.OpenAccount{AccountID: accountID},
		banktest.DepositMoney{Amount: 200},
		banktest.DepositMoney{Amount: 200},
		banktest.WithdrawMoney{Amount: 150, ATMID: "atm-1"},
	}
	for _, command := range commands {
		if err := framework.ExecuteWithMetadata(ctx, accountID, command, metadata); err != nil {
			if cqrs.IsUserError(err) {
				logger.Warn("command rejected", "command", fmt.Sprintf("%T", command), "error", err)
				continue
			}
			return err
		}
	}

	view, found := ledger.Load(ctx, accountID)
	if !found {
		return fmt.Errorf("ledger view for %s not materialized", accountID)
	}
	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func buildRepositories(logger *slog.Logger) (persist.EventRepository, persist.ViewRepository[*banktest.AccountView, banktest.Event], func(), error) {
	backend := os.Getenv("BANKDEMO_BACKEND")
	if backend == "" {
		backend = "memory"
	}
	logger.Info("starting bankdemo", "backend", backend)

	switch backend {
	case "memory":
		return memory.NewEventRepository(), memory.NewViewRepository[*banktest.AccountView, banktest.Event](banktest.NewAccountView), func() {}, nil

	case "sqlite":
		cfg, err := sqlite.LoadConfigFromEnv()
		if err != nil {
			return nil, nil, nil, err
		}
		db, err := sqlite.Connect(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if _, err := db.Exec(sqlite.Schema); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		cleanup := func() { db.Close() }
		return sqlite.NewEventRepository(db), sqlite.NewViewRepository[*banktest.AccountView, banktest.Event](db, banktest.NewAccountView), cleanup, nil

	case "postgres":
		cfg, err := postgres.LoadConfigFromEnv()
		if err != nil {
			return nil, nil, nil, err
		}
		db, err := postgres.Connect(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if _, err := db.Exec(postgres.Schema); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		cleanup := func() { db.Close() }
		return postgres.NewEventRepository(db), postgres.NewViewRepository[*banktest.AccountView, banktest.Event](db, banktest.NewAccountView), cleanup, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}
