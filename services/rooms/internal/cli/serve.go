package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/diagnosis/roomlife/pkg/config"
	"github.com/diagnosis/roomlife/pkg/database"
	"github.com/diagnosis/roomlife/pkg/events"
	"github.com/diagnosis/roomlife/pkg/logger"
	mw "github.com/diagnosis/roomlife/pkg/middleware"
	"github.com/diagnosis/roomlife/pkg/obs"
	"github.com/diagnosis/roomlife/services/rooms/internal/handlers"
	"github.com/diagnosis/roomlife/services/rooms/internal/hub"
	"github.com/diagnosis/roomlife/services/rooms/internal/notify"
	"github.com/diagnosis/roomlife/services/rooms/internal/payments"
	"github.com/diagnosis/roomlife/services/rooms/internal/repository"
	"github.com/diagnosis/roomlife/services/rooms/internal/scheduler"
	"github.com/diagnosis/roomlife/services/rooms/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the room lifecycle API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	shutdownTracer, err := obs.InitTracer(ctx, "rooms", Version, cfg.Tracing)
	if err != nil {
		return err
	}

	pool, err := database.Connect(ctx, cfg.Database)
	switch {
	case errors.Is(err, database.ErrDisabled):
		logger.Info("Database not configured, rooms come from ROOMS_SEED")
	case err != nil:
		return fmt.Errorf("connect database: %w", err)
	default:
		defer pool.Close()
	}

	clock := clockwork.NewRealClock()
	rooms := repository.NewRoomRegistry(clock)
	bookings := repository.NewBookingStore(clock)

	var catalog repository.RoomCatalog
	if pool != nil {
		catalog = repository.NewRoomCatalog(pool)
	}
	if err := seedRooms(ctx, rooms, catalog, cfg.Rooms.Seed); err != nil {
		return err
	}

	h := hub.New(hub.Options{
		QueueSize:       cfg.Notify.QueueSize,
		ListenerTimeout: cfg.Notify.ListenerTimeout,
		ReservedSlots:   cfg.Notify.ReservedSlots,
	})

	bus, err := connectEventBus(cfg.Events)
	if err != nil {
		return err
	}
	if bus != nil {
		defer bus.Close()
		if _, err := h.Subscribe("event-bus", notify.NewBusListener(bus)); err != nil {
			return err
		}
	}

	if pool != nil {
		mailer, err := notify.NewMailer(cfg.Email)
		if err != nil {
			return err
		}
		contacts := repository.NewContactRepository(pool)
		if _, err := h.Subscribe("no-show-mailer", notify.NewNoShowMailer(bookings, contacts, mailer)); err != nil {
			return err
		}
	} else {
		logger.Info("No-show emails disabled, no contact database")
	}

	gateway, err := payments.New(cfg.Payments, cfg.Lifecycle.Currency)
	if err != nil {
		return err
	}

	sched := scheduler.New(clock)
	svc := service.NewLifecycleService(rooms, bookings, catalog, sched, h, gateway, clock, cfg.Lifecycle)

	idempotency, closeRedis, err := idempotencyMiddleware(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeRedis()

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("rooms"))
	r.Use(mw.Logging)
	r.Use(mw.Recover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)
	r.Use(mw.Metrics(svc, h))
	r.Mount("/v1", handlers.New(svc, h, cfg.Auth.JWTSecret).Routes(idempotency))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting rooms service", "port", cfg.Server.Port, "payments", cfg.Payments.Provider, "events", cfg.Events.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rooms service: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down rooms service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("Timer shutdown error", "error", err)
	}
	if err := h.Close(shutdownCtx); err != nil {
		logger.Error("Hub shutdown error", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown error", "error", err)
	}
	return nil
}

// seedRooms loads the room list from the catalog when there is one, seeding the catalog from
// the static list on first start.
func seedRooms(ctx context.Context, rooms repository.RoomRegistry, catalog repository.RoomCatalog, seed []string) error {
	ids := seed
	if catalog != nil {
		stored, err := catalog.ListRoomIDs(ctx)
		if err != nil {
			return fmt.Errorf("load rooms: %w", err)
		}
		if len(stored) == 0 {
			for _, id := range seed {
				if err := catalog.AddRoom(ctx, id); err != nil {
					return fmt.Errorf("seed room %s: %w", id, err)
				}
			}
		} else {
			ids = stored
		}
	}

	for _, id := range ids {
		if _, err := rooms.Add(id); err != nil {
			return fmt.Errorf("register room %s: %w", id, err)
		}
	}
	logger.Info("Rooms registered", "count", len(ids))
	return nil
}

func connectEventBus(cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "nats":
		bus, err := events.NewNATSEventBus(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case "amqp":
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// idempotencyMiddleware returns nil middleware when Redis is not configured.
func idempotencyMiddleware(ctx context.Context, cfg config.RedisConfig) (func(http.Handler) http.Handler, func(), error) {
	if cfg.URL == "" {
		return nil, func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	store := repository.NewIdempotencyRepository(client)
	return mw.IdempotencyMiddleware(store, cfg.IdempotencyTTL), func() { _ = client.Close() }, nil
}
