package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maplego/client/internal/config"
	"github.com/maplego/client/internal/handler"
	gonet "github.com/maplego/client/internal/net"
	"github.com/maplego/client/internal/net/packet"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var errShutdown = errors.New("shutdown requested")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(addr string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            maplego client  v0.1.0         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mServer:\033[0m %s\n\n", addr)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printFail(msg string) {
	fmt.Printf("  \033[31m✗\033[0m %s\n", msg)
}

// ── Client logic ──────────────────────────────────────────────────

func run() error {
	cfgPath := "config/client.toml"
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

	printBanner(cfg.Client.ServerAddress)
	printSection("Connect")

	dialCtx, cancel := context.WithTimeout(context.Background(), cfg.Client.DialTimeout)
	sess, err := gonet.Dial(dialCtx, cfg.Client.ServerAddress, sessionOptions(cfg.Network), log)
	cancel()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	hs := sess.Handshake()
	printOK(fmt.Sprintf("handshake  version=%d  patch=%q  locale=%d", hs.Version, hs.Patch, hs.Locale))

	reg := packet.NewRegistry(log)
	deps := &handler.Deps{
		Config: cfg,
		Log:    log,
		OnLoginStatus: func(s packet.LoginStatus) {
			if s.Result == packet.LoginSuccess {
				printOK(fmt.Sprintf("logged in as %s (id %d)", s.Name, s.AccountID))
				return
			}
			printFail(fmt.Sprintf("login refused: %s %s", s.Result, s.Reason))
		},
	}
	handler.RegisterAll(reg, deps)

	handler.SendClientStart(sess)
	if cfg.Client.AutoLogin {
		if err := handler.SendLogin(sess, deps); err != nil {
			return err
		}
	}
	fmt.Println()

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			return errShutdown
		case <-ctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		for {
			data, err := sess.Recv(ctx)
			if err != nil {
				return err
			}
			if err := reg.Dispatch(sess, sess.State(), data); err != nil {
				log.Warn("dispatch failed", zap.Error(err))
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, errShutdown) {
		log.Info("client stopped")
		return nil
	}
	return fmt.Errorf("session: %w", err)
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
