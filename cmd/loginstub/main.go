package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/maplego/client/internal/config"
	"github.com/maplego/client/internal/data"
	"github.com/maplego/client/internal/login"
	gonet "github.com/maplego/client/internal/net"
	"github.com/maplego/client/internal/net/packet"
	"github.com/maplego/client/internal/persist"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(version uint16, locale byte) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m          maplego login stub  v0.1.0       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mVersion:\033[0m %d \033[90m(locale %d)\033[0m\n\n", version, locale)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Stub server logic ─────────────────────────────────────────────

func run() error {
	cfgPath := "config/loginstub.toml"
	if p := os.Getenv("MAPLEGO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.LoginServer.Version, cfg.LoginServer.Locale)

	printSection("Accounts")
	store, closeStore, err := openAccountStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	fmt.Println()

	reg := packet.NewRegistry(log)
	deps := &login.Deps{
		Accounts: store,
		Config:   &cfg.LoginServer,
		Log:      log,
	}
	login.RegisterAll(reg, deps)

	template := gonet.Handshake{
		Version: cfg.LoginServer.Version,
		Patch:   cfg.LoginServer.Patch,
		Locale:  cfg.LoginServer.Locale,
	}
	srv, err := gonet.NewServer(cfg.LoginServer.BindAddress, template, sessionOptions(cfg.Network), log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go srv.AcceptLoop()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	printSection("Ready")
	printReady(fmt.Sprintf("listening on %s", srv.Addr().String()))
	if cfg.LoginServer.PingInterval > 0 {
		printReady(fmt.Sprintf("ping every %s", cfg.LoginServer.PingInterval))
	}
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	online := make(map[uint64]*gonet.Session)

	for {
		select {
		case sess := <-srv.NewSessions():
			online[sess.ID] = sess
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := login.Serve(ctx, sess, reg, deps)
				log.Info(fmt.Sprintf("client disconnected  session=%d", sess.ID), zap.Error(err))
				srv.NotifyDead(sess.ID)
			}()
		case id := <-srv.DeadSessions():
			delete(online, id)
			log.Debug("session removed", zap.Uint64("session", id), zap.Int("online", len(online)))
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			srv.Shutdown()
			cancel()
			wg.Wait()
			log.Info("login stub stopped")
			return nil
		}
	}
}

// openAccountStore uses PostgreSQL when a DSN is configured and the YAML
// account table otherwise.
func openAccountStore(cfg *config.Config, log *zap.Logger) (login.AccountStore, func(), error) {
	if cfg.Database.DSN == "" {
		table, err := data.LoadAccountTable(cfg.LoginServer.AccountsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load accounts: %w", err)
		}
		printStat("Accounts ("+cfg.LoginServer.AccountsFile+")", table.Count())
		return table, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	printOK("PostgreSQL connected")

	version, err := persist.RunMigrations(ctx, db.Pool, log)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	printOK(fmt.Sprintf("migrations applied (schema %d)", version))

	repo := persist.NewAccountRepo(db)
	n, err := repo.ResetOnline(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("reset online flags: %w", err)
	}
	if n > 0 {
		printStat("Stale online flags cleared", int(n))
	}
	return repo, db.Close, nil
}

func sessionOptions(cfg config.NetworkConfig) gonet.Options {
	return gonet.Options{
		ReadBufferSize:   cfg.ReadBufferSize,
		InQueueSize:      cfg.InQueueSize,
		OutQueueSize:     cfg.OutQueueSize,
		WriteTimeout:     cfg.WriteTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		PacketsPerSecond: cfg.PacketsPerSecond,
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
