package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/backend"
	"github.com/fjod/go_cart/cartsync/internal/backend/inventory"
	"github.com/fjod/go_cart/cartsync/internal/backend/repository"
	"github.com/fjod/go_cart/cartsync/internal/config"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/events"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type seed struct {
	stock int
	price string
}

// Initial catalog of the demo backend
var initialStock = map[string]seed{
	"1": {100, "999.99"}, // Laptop
	"2": {500, "29.99"},  // Mouse
	"3": {300, "79.99"},  // Keyboard
	"4": {150, "299.99"}, // Monitor
	"5": {3, "149.99"},   // Headphones
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	stock := inventory.NewMemoryStore()
	for productID, s := range initialStock {
		if err := stock.SetStock(domain.Subject{Kind: domain.SubjectProduct, ID: productID}, s.stock); err != nil {
			log.Fatalf("Failed to set initial stock for product %s: %v", productID, err)
		}
		if err := stock.SetPrice(productID, decimal.RequireFromString(s.price)); err != nil {
			log.Fatalf("Failed to set price for product %s: %v", productID, err)
		}
	}
	log.Printf("Initialized stock for %d products", len(initialStock))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	repo, disconnect := openRepository(ctx, cfg.Backend)
	defer disconnect()

	svc := backend.NewService(repo, stock)

	var consumer *events.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		consumer = events.NewConsumer(events.NewReader(cfg.Kafka.GroupID+"-backend", cfg.Kafka.Brokers, events.CheckoutTopic))
		consumer.Handle("checkout", events.CheckoutHandler(func(ctx context.Context, p events.CheckoutPayload) error {
			return svc.OrderPlaced(ctx, p.UserID, p.SessionID)
		}))
		go consumer.Run(ctx)
		log.Printf("consuming %s from %v", events.CheckoutTopic, cfg.Kafka.Brokers)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Backend.Port,
		Handler:      otelhttp.NewHandler(backend.NewHandler(svc, cfg.Server.RequestTimeout).Routes(), "cart-backend"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Cart backend listening on port %s", cfg.Backend.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down cart backend...")
	stop()
	if consumer != nil {
		consumer.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	log.Println("Cart backend stopped")
}

// openRepository uses MongoDB when MONGODB_URI is set and memory otherwise
func openRepository(ctx context.Context, cfg config.BackendConfig) (repository.CartRepository, func()) {
	if cfg.MongoURI == "" {
		log.Println("MONGODB_URI not set, carts kept in memory")
		return repository.NewMemoryRepository(), func() {}
	}

	db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	repo := repository.NewMongoRepository(db)
	if err := repo.CreateIndexes(ctx); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}
	log.Printf("Connected to MongoDB database %s", cfg.MongoDatabase)

	return repo, func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Client().Disconnect(dctx); err != nil {
			log.Printf("error disconnecting from MongoDB: %v", err)
		}
	}
}
