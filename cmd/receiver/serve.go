package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/OperatorFoundation/nahoftu4i/inbox"
	"github.com/OperatorFoundation/nahoftu4i/notify"
	"github.com/OperatorFoundation/nahoftu4i/observability"
	"github.com/OperatorFoundation/nahoftu4i/receiver"
	"github.com/OperatorFoundation/nahoftu4i/rpc"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the receive engine and its control surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return serve(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	return cmd
}

func serve(parent context.Context, cfg *receiver.Config, opts *globalOptions) error {
	logger := opts.logger()
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))
	base, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return err
	}
	events := observability.NewCounter()
	observer := observability.NewMultiObserver(base, events)

	engine, err := receiver.New(cfg, receiver.WithObserver(observer))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	store, err := inbox.NewStore(&cfg.Inbox)
	if err != nil {
		engine.Shutdown(shutdownTimeout)
		return fmt.Errorf("failed to open inbox: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if store == nil {
			for p := range engine.Payloads() {
				logger.Info("message received", "identity", p.Identity, "bytes", len(p.Plaintext))
			}
			return
		}
		defer store.Close()
		// Collect ends when the engine closes the payload channel on shutdown.
		n, _ := inbox.Collect(context.WithoutCancel(ctx), engine.Payloads(), store, observer)
		logger.Info("inbox closed", "saved", n)
	}()

	if cfg.Notify.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.Notify.RedisURL)
		if err != nil {
			engine.Shutdown(shutdownTimeout)
			return fmt.Errorf("failed to parse notify redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()

		publisher := notify.NewPublisher(client, cfg.Notify.Channel, observer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx, engine.SubscribeState())
		}()
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(engine, cfg, observer, events),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("receiver listening", "addr", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if serr := server.Shutdown(shutdownCtx); serr != nil {
		err = errors.Join(err, serr)
	}
	if serr := engine.Shutdown(shutdownTimeout); serr != nil {
		err = errors.Join(err, serr)
	}
	stop()
	wg.Wait()
	return err
}

func newRouter(engine *receiver.Engine, cfg *receiver.Config, observer observability.Observer, events *observability.Counter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	var handlerOpts []rpc.Option
	if cfg.Notify.JWTSecret != "" {
		handlerOpts = append(handlerOpts, rpc.WithHandlerOptions(
			connect.WithInterceptors(rpc.NewAuthInterceptor(cfg.Notify.JWTSecret))))
	}
	path, handler := rpc.NewHandler(engine, handlerOpts...)
	r.Handle(path+"*", handler)

	r.Handle("/ws", notify.NewHub(engine, cfg.Notify.JWTSecret, notify.WithHubObserver(observer)))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		snap := engine.Snapshot()
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"state":    snap.State,
			"observed": snap.Observed,
			"metrics":  engine.Metrics(),
			"events":   events.Snapshot(),
		})
	})

	return r
}
