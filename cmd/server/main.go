package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tradesim/exchange-engine/internal/asset"
	"github.com/tradesim/exchange-engine/internal/engine"
	"github.com/tradesim/exchange-engine/internal/feed"
	"github.com/tradesim/exchange-engine/internal/ledger"
	"github.com/tradesim/exchange-engine/internal/metrics"
	"github.com/tradesim/exchange-engine/internal/pricing"
	"github.com/tradesim/exchange-engine/internal/risk"
	"github.com/tradesim/exchange-engine/internal/store"
	"github.com/tradesim/exchange-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Engine ---
	startingCash := decimalEnv("STARTING_CASH", decimal.NewFromInt(100000))
	maxPosition := int64Env("MAX_POSITION_PER_SYMBOL", 0)
	maxNotional := decimalEnv("MAX_ORDER_NOTIONAL", decimal.Zero)

	prices := pricing.NewReference()
	lg := ledger.New(startingCash)
	limits := risk.NewLimiter(maxPosition, maxNotional)
	eng := engine.New(prices, lg, limits)

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trade service ---
	tradeSvc := trade.NewService(eng, st, wsHub)

	// --- Market-data feed ---
	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()

	interval := time.Duration(int64Env("FEED_INTERVAL_MS", 5000)) * time.Millisecond
	sim := feed.NewSimulator(asset.Defaults(), interval, func(symbol string, price decimal.Decimal) {
		if _, err := tradeSvc.ApplyPriceUpdate(symbol, price); err != nil {
			slog.Error("price update failed", "symbol", symbol, "err", err)
		}
	})
	sim.Seed()
	if os.Getenv("FEED_DISABLED") == "" {
		go sim.Run(feedCtx)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"exchange-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time fills and price updates.
		r.Get("/ws", wsHub.HandleWS)

		// Order submission and lifecycle.
		r.Post("/orders", tradeSvc.SubmitOrder)
		r.Get("/orders/{orderID}", tradeSvc.GetOrder)
		r.Delete("/orders/{orderID}", tradeSvc.CancelOrder)
		r.Get("/users/{userID}/orders", tradeSvc.ListUserOrders)
		r.Get("/users/{userID}/fills", tradeSvc.ListUserFills)

		// Market data.
		r.Get("/book/{symbol}", tradeSvc.GetBook)
		r.Get("/prices/{symbol}", tradeSvc.GetPrice)
		r.Put("/prices/{symbol}", tradeSvc.PutPrice)
		r.Get("/symbols/{symbol}/fills", tradeSvc.GetTape)

		// Portfolio and wallet.
		r.Get("/portfolio/{userID}", tradeSvc.GetPortfolio)
		r.Post("/wallet/deposit", tradeSvc.Deposit)
		r.Post("/wallet/withdraw", tradeSvc.Withdraw)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("exchange-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopFeed()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down exchange-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("exchange-engine stopped")
}

// decimalEnv reads a decimal environment variable with a default.
func decimalEnv(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Warn("invalid decimal env var, using default", "key", key, "value", v)
		return def
	}
	return d
}

// int64Env reads an integer environment variable with a default.
func int64Env(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "key", key, "value", v)
		return def
	}
	return n
}
