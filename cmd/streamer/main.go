package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/coinstream/internal/account"
	"github.com/rickgao/coinstream/internal/api"
	"github.com/rickgao/coinstream/internal/auth"
	"github.com/rickgao/coinstream/internal/config"
	"github.com/rickgao/coinstream/internal/connection"
	"github.com/rickgao/coinstream/internal/logging"
	"github.com/rickgao/coinstream/internal/metrics"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/orderop"
	"github.com/rickgao/coinstream/internal/router"
	"github.com/rickgao/coinstream/internal/session"
	"github.com/rickgao/coinstream/internal/venue"
	"github.com/rickgao/coinstream/internal/venue/bitfinex"
	"github.com/rickgao/coinstream/internal/venue/bitflyer"
	"github.com/rickgao/coinstream/internal/version"
)

// newLogger is swapped in tests to observe the log closer.
var newLogger = logging.New

func main() {
	os.Exit(start(os.Args[1:], run))
}

// start runs the streamer and returns the process exit code. Deferred
// cleanup runs before main exits.
func start(args []string, runFn func(*config.StreamerConfig, *slog.Logger) error) int {
	fset := flag.NewFlagSet("streamer", flag.ContinueOnError)
	configPath := fset.String("config", "configs/streamer.yaml", "path to config file")
	envPath := fset.String("env", ".env", "optional dotenv file loaded before the config")
	if err := fset.Parse(args); err != nil {
		return 2
	}

	// Bootstrap logger until the configured one exists
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to load env file", "path", *envPath, "error", err)
		return 1
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	logger, logCloser, err := newLogger(cfg.Logging, os.Stdout)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		return 1
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"venue", cfg.Venue.Name,
	)

	if err := runFn(cfg, logger); err != nil {
		logger.Error("streamer failed", "error", err)
		return 1
	}
	logger.Info("streamer stopped")
	return 0
}

func run(cfg *config.StreamerConfig, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var creds *auth.Credentials
	if cfg.API.HasCredentials() {
		c, err := auth.LoadCredentials(cfg.API.APIKey, cfg.API.APISecret, cfg.API.APISecretPath)
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		creds = c
	}

	v, err := newVenue(cfg.Venue)
	if err != nil {
		return err
	}

	var rest *api.Client
	if v.Name() == "bitfinex" {
		opts := []api.ClientOption{
			api.WithLogger(logger.With("component", "api")),
			api.WithTimeout(cfg.API.Timeout),
			api.WithRetries(cfg.API.MaxRetries, time.Second),
		}
		if creds != nil {
			opts = append(opts, api.WithSigner(creds))
		}
		rest = api.NewClient(cfg.API.RestURL, opts...)

		// Check exchange status
		operative, err := rest.PlatformStatus(ctx)
		if err != nil {
			logger.Warn("failed to get platform status", "error", err)
		} else if !operative {
			logger.Warn("platform in maintenance; session will keep retrying")
		}
	}

	m := metrics.New()
	stream := make(chan model.StreamData, cfg.Connection.BufferSize)

	dialer := connection.NewWebSocketDialer(connection.ClientConfig{
		URL:              v.URL(),
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		PingInterval:     cfg.Connection.PingInterval,
		PingTimeout:      cfg.Connection.PingTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		BufferSize:       cfg.Connection.BufferSize,
	}, logger)

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithHandlers(session.Handlers{
			OnOpen:  func() { logger.Info("session open") },
			OnClose: func() { logger.Warn("session connection closed") },
			OnAuth: func(ok bool, info string) {
				if ok {
					logger.Info("authenticated")
				} else {
					logger.Error("authentication rejected", "info", info)
				}
			},
			OnData: func(d model.StreamData) {
				select {
				case stream <- d:
				default:
					logger.Warn("stream buffer full, dropping update", "stream", d.Key.Stream, "instrument", d.Key.Instrument)
				}
			},
		}),
	}
	if creds != nil {
		opts = append(opts, session.WithSigner(creds))
	}
	sess := session.New(sessionConfig(cfg), v, dialer, opts...)

	if err := sess.Open(ctx); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	if !sess.WaitConnection(cfg.Session.ConnectTimeout) {
		logger.Warn("not connected yet, continuing in background", "timeout", cfg.Session.ConnectTimeout)
	}

	if creds != nil {
		if err := sess.Authenticate(); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		if sess.WaitAuthentication(cfg.Session.ConnectTimeout) {
			logger.Info("account snapshot received", "balances", len(sess.Balances()), "orders", len(sess.Orders()))
			if rest != nil {
				wallets, err := rest.Wallets(ctx)
				if err != nil {
					logger.Warn("failed to fetch wallets", "error", err)
				} else {
					logger.Info("rest wallets", "count", len(wallets))
				}
			}
		}
	}

	if keys := cfg.Keys(); len(keys) > 0 {
		if err := sess.Subscribe(keys...); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(sess, m, cfg.Metrics.Path),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case d := <-stream:
				logStreamData(logger, d)
			}
		}
	})

	return g.Wait()
}

func newVenue(cfg config.VenueConfig) (venue.Venue, error) {
	switch cfg.Name {
	case "bitfinex":
		return bitfinex.New(bitfinex.Config{
			URL:      cfg.WSURL,
			BookPrec: cfg.BookPrec,
			BookFreq: cfg.BookFreq,
			BookLen:  cfg.BookLen,
			Symbols:  cfg.Symbols,
		}), nil
	case "bitflyer":
		return bitflyer.New(bitflyer.Config{URL: cfg.WSURL}), nil
	}
	return nil, fmt.Errorf("unknown venue %q", cfg.Name)
}

func sessionConfig(cfg *config.StreamerConfig) session.Config {
	return session.Config{
		ReconnectDelay:    cfg.Session.ReconnectDelay,
		ReconnectMaxDelay: cfg.Session.ReconnectMaxDelay,
		Router: router.Config{
			DrainInterval: cfg.Session.DrainInterval,
			SendRate:      cfg.Session.SendRate,
			SendBurst:     cfg.Session.SendBurst,
		},
		Account: account.Config{
			OrderTTL: cfg.Account.OrderTTL,
			QueueLen: cfg.Account.QueueLen,
		},
		Orders: orderop.Config{
			Timeout:      cfg.Orders.Timeout,
			PollInterval: cfg.Orders.PollInterval,
			Rate:         cfg.Orders.Rate,
			Burst:        cfg.Orders.Burst,
		},
	}
}

func logStreamData(logger *slog.Logger, d model.StreamData) {
	switch p := d.Payload.(type) {
	case *model.OrderBook:
		attrs := []any{"instrument", d.Key.Instrument, "asks", len(p.Asks), "bids", len(p.Bids)}
		if a, ok := p.BestAsk(); ok {
			attrs = append(attrs, "best_ask", a.Price.String())
		}
		if b, ok := p.BestBid(); ok {
			attrs = append(attrs, "best_bid", b.Price.String())
		}
		logger.Debug("order book", attrs...)
	case *model.Ticker:
		logger.Debug("ticker",
			"instrument", d.Key.Instrument,
			"bid", p.Bid.String(),
			"ask", p.Ask.String(),
			"last", p.Last.String(),
		)
	case *model.Execution:
		logger.Info("execution", "order_id", p.OrderID, "qty", p.Qty.String(), "price", p.Price.String())
	case model.AccountEvent:
		logger.Debug("account event", "type", p.Type)
	default:
		logger.Debug("stream data", "stream", d.Key.Stream, "instrument", d.Key.Instrument)
	}
}
