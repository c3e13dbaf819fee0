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

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/halopay/bridge"
	"github.com/halopay/bridge/signature"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bridged: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "bridged.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := loadServiceConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	sessionStore := bridge.NewSessionStore(
		bridge.WithSessionTTL(cfg.SessionTTL),
		bridge.WithStoreLogger(logger),
	)
	orderStore := bridge.NewOrderStore()

	orderOpts := []bridge.OrderServiceOption{bridge.WithOrderLogger(logger)}
	if cfg.WebhookURL != "" {
		sink := bridge.NewWebhookSender(cfg.WebhookURL, []byte(cfg.WebhookSecret),
			bridge.WithWebhookLogger(logger))
		orderOpts = append(orderOpts, bridge.WithOrderEvents(sink))
	}
	orders := bridge.NewOrderService(orderStore, orderOpts...)

	// Stand-in settlement until a real payment network is wired.
	executor := bridge.NewIdempotentExecutor(bridge.PaymentExecutorFunc(
		func(_ context.Context, sessionID string, amountCents int, currency string, method bridge.PaymentMethod) (bridge.PaymentResult, error) {
			logger.Info().
				Str("session_id", sessionID).
				Int("amount_cents", amountCents).
				Str("currency", currency).
				Str("method", method.Type).
				Msg("executing payment")
			return bridge.PaymentResult{Success: true, TransactionID: "txn_" + uuid.NewString()}, nil
		},
	))

	catalog := bridge.NewStaticCatalog(cfg.Products...)
	sessions := bridge.NewSessionService(sessionStore, orders, executor, catalog,
		bridge.WithSessionLogger(logger))

	router := bridge.NewRouter(bridge.NewDefaultRegistry(), sessions,
		bridge.WithRouterLogger(logger))

	handlerOpts := []bridge.Option{
		bridge.WithMaxClockSkew(cfg.MaxClockSkew),
	}
	if len(cfg.BearerTokens) > 0 {
		handlerOpts = append(handlerOpts, bridge.WithAuthenticator(
			bridge.NewStaticTokenAuthenticator(cfg.BearerTokens...)))
	} else if cfg.JWTSecret != "" {
		var jwtOpts []bridge.JWTOption
		if cfg.JWTIssuer != "" {
			jwtOpts = append(jwtOpts, bridge.WithJWTIssuer(cfg.JWTIssuer))
		}
		handlerOpts = append(handlerOpts, bridge.WithAuthenticator(
			bridge.NewJWTAuthenticator([]byte(cfg.JWTSecret), jwtOpts...)))
	}
	if cfg.SigningSecret != "" {
		handlerOpts = append(handlerOpts, bridge.WithSignatureVerifier(
			signature.HMACVerifier{Key: []byte(cfg.SigningSecret)}))
		if cfg.RequireSigned {
			handlerOpts = append(handlerOpts, bridge.WithRequireSignedRequests())
		}
	}

	handler := bridge.NewBridgeHandler(router, cfg.MerchantProtocol, cfg.Merchant, handlerOpts...)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("listen", cfg.Listen).
			Str("merchant_protocol", cfg.MerchantProtocol).
			Strs("protocols", router.SupportedProtocols()).
			Msg("bridged listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg serviceConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log_level: %w", err)
	}

	logger := zerolog.New(os.Stdout)
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("app", "bridged").Logger(), nil
}
