package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/availability"
	"github.com/fjod/go_cart/cartsync/internal/cart"
	"github.com/fjod/go_cart/cartsync/internal/circuitbreaker"
	"github.com/fjod/go_cart/cartsync/internal/client"
	"github.com/fjod/go_cart/cartsync/internal/config"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/events"
	"github.com/fjod/go_cart/cartsync/internal/httpapi"
	"github.com/fjod/go_cart/cartsync/internal/reconcile"
	"github.com/fjod/go_cart/cartsync/internal/session"
	"github.com/fjod/go_cart/cartsync/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	persister, closer, err := openPersister(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open guest cart storage: %v", err)
	}

	hc := client.NewHTTPClient(cfg.Availability.FetchTimeout)
	inventoryClient := client.NewInventoryClient(cfg.Endpoints.InventoryURL, hc, circuitbreaker.Config{
		Name:        "inventory",
		MaxFailures: cfg.Sync.BreakerFailures,
		OpenTimeout: cfg.Sync.BreakerTimeout,
	})
	cartClient := client.NewCartClient(cfg.Endpoints.CartURL, client.NewHTTPClient(cfg.Sync.Timeout), circuitbreaker.Config{
		Name:        "cart-merge",
		MaxFailures: cfg.Sync.BreakerFailures,
		OpenTimeout: cfg.Sync.BreakerTimeout,
	})

	sess := session.New(cfg.Session.ID, persister, inventoryClient, cartClient, session.Options{
		Availability: availability.Config{
			RefreshInterval: cfg.Availability.RefreshInterval,
			Grace:           cfg.Availability.Grace,
			FetchTimeout:    cfg.Availability.FetchTimeout,
		},
		Sync: reconcile.Config{
			SyncTimeout:      cfg.Sync.Timeout,
			LoginMergePolicy: cfg.Sync.MergeMode(),
		},
	})
	if closer != nil {
		sess.OnTeardown(closer)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	err = sess.Init(initCtx)
	cancelInit()
	if err != nil {
		log.Fatalf("session %s init error: %v", sess.ID(), err)
	}
	log.Printf("session %s ready", sess.ID())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var consumer *events.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		consumer = newConsumer(cfg.Kafka, sess)
		go consumer.Run(ctx)
		log.Printf("consuming %s and %s from %v", events.AuthTopic, events.CheckoutTopic, cfg.Kafka.Brokers)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(httpapi.NewRouter(sess, cfg.Server.RequestTimeout), "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront starting on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	stop()
	if consumer != nil {
		consumer.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	if err := sess.Teardown(); err != nil {
		log.Printf("session teardown error: %v", err)
	}

	log.Println("server exited")
}

// openPersister returns the guest cart persister and whatever must be closed with it
func openPersister(cfg config.StorageConfig) (cart.Persister, io.Closer, error) {
	switch cfg.Type {
	case config.StorageRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Printf("Guest carts stored in redis at %s", cfg.RedisAddr)
		return storage.NewRedisCache(rdb), rdb, nil
	case config.StorageSQLite:
		db, err := storage.NewSQLiteCache(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Guest carts stored in sqlite at %s", cfg.SQLitePath)
		return db, db, nil
	default:
		log.Println("Guest cart persistence disabled")
		return nil, nil, nil
	}
}

func newConsumer(cfg config.KafkaConfig, sess *session.Session) *events.Consumer {
	reader := events.NewReader(cfg.GroupID+"-"+sess.ID(), cfg.Brokers, events.AuthTopic, events.CheckoutTopic)
	consumer := events.NewConsumer(reader)

	consumer.Handle("login", events.AuthHandler(domain.AuthLogin, sess.ID(), authTarget{sess}))
	consumer.Handle("logout", events.AuthHandler(domain.AuthLogout, sess.ID(), authTarget{sess}))
	consumer.Handle("checkout", events.CheckoutHandler(func(_ context.Context, p events.CheckoutPayload) error {
		c := sess.Store.Cart()
		if p.SessionID != sess.ID() && (p.UserID == "" || p.UserID != c.UserID) {
			return nil
		}
		log.Printf("checkout %s completed, clearing cart of session %s", p.CheckoutID, sess.ID())
		sess.Sync.OrderPlaced()
		return sess.WatchCart()
	}))
	return consumer
}

// authTarget re-subscribes to stock of the lines an auth transition left in the cart
type authTarget struct {
	sess *session.Session
}

func (a authTarget) HandleAuthEvent(ctx context.Context, ev domain.AuthEvent) error {
	if err := a.sess.Sync.HandleAuthEvent(ctx, ev); err != nil {
		return err
	}
	return a.sess.WatchCart()
}
