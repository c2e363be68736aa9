// streamtest connects to a venue's public WebSocket and prints normalized
// order books and tickers to the console.
// Usage: go run ./cmd/streamtest --venue bitflyer --books BTC_JPY --tickers ETH_JPY
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/coinstream/internal/connection"
	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/session"
	"github.com/rickgao/coinstream/internal/venue"
	"github.com/rickgao/coinstream/internal/venue/bitfinex"
	"github.com/rickgao/coinstream/internal/venue/bitflyer"
)

func main() {
	venueName := flag.String("venue", "bitfinex", "venue: bitfinex or bitflyer")
	books := flag.String("books", "BTC_USD", "comma-separated instruments for order books")
	tickers := flag.String("tickers", "", "comma-separated instruments for tickers")
	depth := flag.Int("depth", 5, "levels printed per side")
	verbose := flag.Bool("verbose", false, "print full payload JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	var v venue.Venue
	switch *venueName {
	case "bitfinex":
		v = bitfinex.New(bitfinex.Config{})
	case "bitflyer":
		v = bitflyer.New(bitflyer.Config{})
	default:
		logger.Error("unknown venue", "venue", *venueName)
		os.Exit(1)
	}

	var keys []model.SubscriptionKey
	keys = appendKeys(keys, model.StreamOrderBook, *books)
	keys = appendKeys(keys, model.StreamTicker, *tickers)
	if len(keys) == 0 {
		logger.Error("nothing to subscribe")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := connection.DefaultClientConfig()
	cfg.URL = v.URL()

	out := make(chan model.StreamData, 1000)
	sess := session.New(session.DefaultConfig(), v, connection.NewWebSocketDialer(cfg, logger),
		session.WithLogger(logger),
		session.WithHandlers(session.Handlers{
			OnData: func(d model.StreamData) {
				select {
				case out <- d:
				default:
				}
			},
		}),
	)

	if err := sess.Open(ctx); err != nil {
		logger.Error("failed to open session", "error", err)
		os.Exit(1)
	}
	if !sess.WaitConnection(30 * time.Second) {
		logger.Warn("still connecting; subscriptions will be sent once open")
	}
	if err := sess.Subscribe(keys...); err != nil {
		logger.Error("failed to subscribe", "error", err)
		sess.Close()
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				confirmed := 0
				for _, b := range sess.Bindings() {
					if b.Confirmed {
						confirmed++
					}
				}
				logger.Info("stats",
					"state", sess.State(),
					"keys", len(sess.Keys()),
					"channels_confirmed", confirmed,
					"buffered", len(out),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "venue", v.Name(), "keys", len(keys))

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down...")
			sess.Close()
			logger.Info("shutdown complete")
			return
		case d := <-out:
			printData(d, *depth, *verbose)
		}
	}
}

func appendKeys(keys []model.SubscriptionKey, stream model.StreamType, list string) []model.SubscriptionKey {
	for _, inst := range strings.Split(list, ",") {
		if inst = strings.TrimSpace(inst); inst != "" {
			keys = append(keys, model.SubscriptionKey{Stream: stream, Instrument: inst})
		}
	}
	return keys
}

func printData(d model.StreamData, depth int, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(d.Payload, "", "  ")
		fmt.Printf("[%s %s] %s\n", strings.ToUpper(string(d.Key.Stream)), d.Key.Instrument, data)
		return
	}

	switch p := d.Payload.(type) {
	case *model.OrderBook:
		fmt.Printf("[ORDERBOOK] instrument=%s asks=%d bids=%d\n", p.Instrument, len(p.Asks), len(p.Bids))
		for i := min(depth, len(p.Asks)) - 1; i >= 0; i-- {
			fmt.Printf("    ask %14s %14s\n", p.Asks[i].Price, p.Asks[i].Qty)
		}
		for i := 0; i < min(depth, len(p.Bids)); i++ {
			fmt.Printf("    bid %14s %14s\n", p.Bids[i].Price, p.Bids[i].Qty)
		}
	case *model.Ticker:
		fmt.Printf("[TICKER] instrument=%s bid=%s ask=%s last=%s vol=%s\n",
			p.Instrument, p.Bid, p.Ask, p.Last, p.Volume24h)
	}
}
