package main

import (
	"context"
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

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"swapvault/adapters/httpx"
	"swapvault/adapters/mock"
	"swapvault/config"
	"swapvault/native/vault"
	"swapvault/observability/logging"
	"swapvault/state"
	"swapvault/storage"
)

const envName = "VAULT_ENV"

type adminSet map[common.Address]struct{}

func (s adminSet) IsAdministrator(caller common.Address) bool {
	_, ok := s[caller]
	return ok
}

func main() {
	configFile := flag.String("config", "./vault.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: use an in-memory store instead of the data directory")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envName))
	logger := logging.Setup("vaultd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		db, err = storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("Failed to open data directory", slog.String("dir", cfg.DataDir), slog.Any("error", err))
			os.Exit(1)
		}
	}
	defer db.Close()

	engine, err := buildEngine(cfg, db)
	if err != nil {
		logger.Error("Failed to build vault engine", slog.Any("error", err))
		os.Exit(1)
	}
	engine.SetLogger(logger)

	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(context.Background(), engine, args); err != nil {
			logger.Error("Command failed", slog.String("command", args[0]), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	serve(cfg, logger)
}

func buildEngine(cfg *config.Config, db storage.Database) (*vault.Engine, error) {
	manager := state.NewManager(db)

	var exchange vault.Exchange
	if endpoint := strings.TrimSpace(cfg.ExchangeEndpoint); endpoint != "" {
		exchange = httpx.NewExchange(endpoint, time.Duration(cfg.ExchangeTimeoutSeconds)*time.Second)
	} else {
		exchange = mock.NewExchange(1, 1)
	}

	admins := make(adminSet, len(cfg.AdminAddresses))
	for _, admin := range cfg.AdminAddresses {
		admins[common.HexToAddress(admin)] = struct{}{}
	}

	engine := vault.NewEngine(manager, exchange, nil, admins)
	engine.SetSwapTimeout(time.Duration(cfg.ExchangeTimeoutSeconds) * time.Second)

	if cfg.FeeRecipient != "" {
		current, err := engine.FeeConfig()
		if err != nil {
			return nil, err
		}
		if current.Recipient == (common.Address{}) {
			if err := seedFeeConfig(manager, cfg); err != nil {
				return nil, err
			}
		}
	}
	return engine, nil
}

// seedFeeConfig writes the bootstrap fee configuration directly; admin-only
// setters cover every later change.
func seedFeeConfig(manager *state.Manager, cfg *config.Config) error {
	return vault.SeedFeeConfig(manager, vault.FeeConfig{
		Recipient: common.HexToAddress(cfg.FeeRecipient),
		FeeBps:    cfg.ProtocolFeeBps,
	})
}

func serve(cfg *config.Config, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}

	go func() {
		logger.Info("Metrics listener started", slog.String("address", cfg.MetricsAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics listener failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
	logger.Info("Shutdown complete")
}

func runCommand(ctx context.Context, engine *vault.Engine, args []string) error {
	switch args[0] {
	case "deposit":
		user, asset, amount, err := parseUserAssetAmount(args[1:])
		if err != nil {
			return err
		}
		return engine.Deposit(ctx, user, user, asset, amount)
	case "withdraw":
		user, asset, amount, err := parseUserAssetAmount(args[1:])
		if err != nil {
			return err
		}
		return engine.Withdraw(ctx, user, user, asset, amount)
	case "withdraw-all":
		if len(args) != 3 {
			return fmt.Errorf("usage: withdraw-all <user> <asset>")
		}
		user, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		asset, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		amount, err := engine.WithdrawAll(ctx, user, user, asset)
		if err != nil {
			return err
		}
		fmt.Println(amount.String())
		return nil
	case "balance":
		if len(args) != 3 {
			return fmt.Errorf("usage: balance <user> <asset>")
		}
		user, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		asset, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		balance, err := engine.Balance(user, asset)
		if err != nil {
			return err
		}
		fmt.Println(balance.String())
		return nil
	case "set-policy":
		if len(args) != 5 {
			return fmt.Errorf("usage: set-policy <user> <maxSlippageBps> <maxTradeSize> <cooldownSeconds>")
		}
		user, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		slippage, err := parseUint32(args[2])
		if err != nil {
			return err
		}
		size, err := parseAmount(args[3])
		if err != nil {
			return err
		}
		cooldown, err := parseUint64(args[4])
		if err != nil {
			return err
		}
		return engine.SetPolicy(user, user, vault.Policy{
			MaxSlippageBps:  slippage,
			MaxTradeSize:    size,
			CooldownSeconds: cooldown,
		})
	case "trade":
		if len(args) != 6 {
			return fmt.Errorf("usage: trade <user> <assetIn> <assetOut> <amountIn> <minAmountOut>")
		}
		user, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		assetIn, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		assetOut, err := parseAddress(args[3])
		if err != nil {
			return err
		}
		amountIn, err := parseAmount(args[4])
		if err != nil {
			return err
		}
		minOut, err := parseAmount(args[5])
		if err != nil {
			return err
		}
		receipt, err := engine.ExecuteTrade(ctx, user, user, assetIn, assetOut, amountIn, minOut)
		if err != nil {
			return err
		}
		fmt.Printf("receipt=%s amountOut=%s fee=%s\n", receipt.ID, receipt.AmountOut.String(), receipt.Fee.String())
		return nil
	case "simulate":
		if len(args) != 4 {
			return fmt.Errorf("usage: simulate <assetIn> <assetOut> <amountIn>")
		}
		assetIn, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		assetOut, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		amountIn, err := parseAmount(args[3])
		if err != nil {
			return err
		}
		quote, err := engine.SimulateTrade(ctx, assetIn, assetOut, amountIn)
		if err != nil {
			return err
		}
		fmt.Println(quote.String())
		return nil
	case "history":
		if len(args) != 2 {
			return fmt.Errorf("usage: history <user>")
		}
		user, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		receipts, err := engine.TradeHistory(user, 20)
		if err != nil {
			return err
		}
		for _, receipt := range receipts {
			fmt.Printf("%s %s->%s in=%s out=%s fee=%s at=%d\n",
				receipt.ID, receipt.AssetIn.Hex(), receipt.AssetOut.Hex(),
				receipt.AmountIn.String(), receipt.AmountOut.String(), receipt.Fee.String(), receipt.Timestamp)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func parseUserAssetAmount(args []string) (common.Address, common.Address, *big.Int, error) {
	if len(args) != 3 {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("expected <user> <asset> <amount>")
	}
	user, err := parseAddress(args[0])
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	asset, err := parseAddress(args[1])
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	amount, err := parseAmount(args[2])
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return user, asset, amount, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a decimal amount", raw)
	}
	return amount, nil
}

func parseUint32(raw string) (uint32, error) {
	var v uint32
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &v); err != nil {
		return 0, fmt.Errorf("%q is not an unsigned integer", raw)
	}
	return v, nil
}

func parseUint64(raw string) (uint64, error) {
	var v uint64
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &v); err != nil {
		return 0, fmt.Errorf("%q is not an unsigned integer", raw)
	}
	return v, nil
}
