package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupMongo(t *testing.T) CartRepository {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))
	return repo
}

func implementations(t *testing.T) map[string]func(t *testing.T) CartRepository {
	return map[string]func(t *testing.T) CartRepository{
		"memory": func(*testing.T) CartRepository { return NewMemoryRepository() },
		"mongo":  setupMongo,
	}
}

func TestUpsertAndGetCart(t *testing.T) {
	for name, setup := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			ctx := context.Background()

			cart := &Cart{
				OwnerID: "user123",
				Items: []CartItem{
					{ProductID: "p1", Quantity: 2, AddedAt: time.Now().UTC().Truncate(time.Millisecond)},
					{ProductID: "p2", VariantID: "v1", Quantity: 1},
				},
			}
			require.NoError(t, repo.UpsertCart(ctx, cart))

			got, err := repo.GetCart(ctx, "user123")
			require.NoError(t, err)
			assert.Equal(t, "user123", got.OwnerID)
			require.Len(t, got.Items, 2)
			assert.Equal(t, "p1", got.Items[0].ProductID)
			assert.Equal(t, 2, got.Items[0].Quantity)
			assert.Equal(t, "v1", got.Items[1].VariantID)
			assert.False(t, got.UpdatedAt.IsZero())
		})
	}
}

func TestUpsertCart_Overwrites(t *testing.T) {
	for name, setup := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			ctx := context.Background()

			require.NoError(t, repo.UpsertCart(ctx, &Cart{OwnerID: "u1", Items: []CartItem{{ProductID: "p1", Quantity: 1}}}))
			require.NoError(t, repo.UpsertCart(ctx, &Cart{OwnerID: "u1", Items: []CartItem{{ProductID: "p2", Quantity: 5}}}))

			got, err := repo.GetCart(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, got.Items, 1)
			assert.Equal(t, "p2", got.Items[0].ProductID)
			assert.Equal(t, 5, got.Items[0].Quantity)
		})
	}
}

func TestUpsertCart_KeepsAppliedMerges(t *testing.T) {
	for name, setup := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			ctx := context.Background()

			cart := &Cart{OwnerID: "u1", Items: []CartItem{{ProductID: "p1", Quantity: 3}}, AppliedMerges: []string{"m-1"}}
			require.NoError(t, repo.UpsertCart(ctx, cart))

			got, err := repo.GetCart(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"m-1"}, got.AppliedMerges)
		})
	}
}

func TestGetCart_NotFound(t *testing.T) {
	for name, setup := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)

			_, err := repo.GetCart(context.Background(), "nobody")
			assert.ErrorIs(t, err, ErrCartNotFound)
		})
	}
}

func TestDeleteCart(t *testing.T) {
	for name, setup := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			repo := setup(t)
			ctx := context.Background()
			owner := GuestOwner("sess-1")

			require.NoError(t, repo.UpsertCart(ctx, &Cart{OwnerID: owner, Items: []CartItem{{ProductID: "p1", Quantity: 1}}}))
			require.NoError(t, repo.DeleteCart(ctx, owner))

			_, err := repo.GetCart(ctx, owner)
			assert.ErrorIs(t, err, ErrCartNotFound)
			assert.ErrorIs(t, repo.DeleteCart(ctx, owner), ErrCartNotFound)
		})
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.UpsertCart(ctx, &Cart{OwnerID: "u1", Items: []CartItem{{ProductID: "p1", Quantity: 1}}}))

	got, err := repo.GetCart(ctx, "u1")
	require.NoError(t, err)
	got.Items[0].Quantity = 99

	again, err := repo.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity)
}

func TestContextCancellation(t *testing.T) {
	repo := setupMongo(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	_, err := repo.GetCart(ctx, "user123")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}
