package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atinylittleshell/quill/internal/config"
	"github.com/atinylittleshell/quill/internal/core"
	"github.com/atinylittleshell/quill/internal/server"
	"github.com/atinylittleshell/quill/internal/thesaurus"
	"go.uber.org/zap"
)

var BUILD_VERSION = "dev"

var addr = flag.String("addr", ":8089", "listen address")
var redisAddr = flag.String("redis", "", "redis address for the pub/sub broker; in-process when empty")
var jwtSecret = flag.String("jwt-secret", "", "require HS256 bearer tokens signed with this secret")
var issueToken = flag.String("issue-token", "", "print a token for this user and exit")
var tokenTTL = flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of issued tokens")
var useLLM = flag.Bool("llm", false, "ask the configured chat model before the built-in table")
var echoIDs = flag.Bool("echo-ids", true, "copy request ids into replies")
var configPath = flag.String("config", "", "config file holding the llm settings")

var versionFlag = flag.Bool("ver", false, "display build version")

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(BUILD_VERSION)
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if *issueToken != "" {
		if *jwtSecret == "" {
			fmt.Fprintln(os.Stderr, "-issue-token needs -jwt-secret")
			os.Exit(2)
		}
		token, err := server.IssueToken(jwtConfig(), *issueToken)
		if err != nil {
			logger.Fatal("failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("thesaurusd stopped", zap.Error(err))
	}
}

func jwtConfig() server.JWTConfig {
	return server.JWTConfig{Secret: []byte(*jwtSecret), TTL: *tokenTTL}
}

func run(ctx context.Context, logger *zap.Logger) error {
	provider, err := newProvider(logger)
	if err != nil {
		return err
	}

	broker, err := newBroker(ctx)
	if err != nil {
		return err
	}
	defer broker.Close()

	opts := server.Options{EchoIDs: *echoIDs}
	if *jwtSecret != "" {
		cfg := jwtConfig()
		opts.JWT = &cfg
	}

	srv := server.New(provider, broker, logger, opts)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("thesaurusd listening",
			zap.String("addr", *addr),
			zap.Bool("redis", *redisAddr != ""),
			zap.Bool("auth", opts.JWT != nil),
			zap.Bool("llm", *useLLM),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("thesaurusd shutting down", zap.Int64("sessions", srv.Sessions()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newProvider(logger *zap.Logger) (thesaurus.Provider, error) {
	table, err := thesaurus.NewBuiltinTable(thesaurus.DefaultLimit)
	if err != nil {
		return nil, err
	}
	if !*useLLM {
		return thesaurus.NewChain(logger, table), nil
	}

	path := *configPath
	if path == "" {
		path = core.ConfigFile()
	}
	cfg, err := config.Load(path, logger)
	if err != nil {
		return nil, err
	}
	llm, err := thesaurus.NewLLMProvider(cfg.LLM, thesaurus.DefaultLimit, logger)
	if err != nil {
		return nil, err
	}
	return thesaurus.NewChain(logger, llm, table), nil
}

func newBroker(ctx context.Context) (server.Broker, error) {
	if *redisAddr == "" {
		return server.NewMemoryBroker(), nil
	}
	return server.NewRedisBroker(ctx, *redisAddr)
}
