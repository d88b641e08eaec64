package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cedra_cart/internal/cache"
	"cedra_cart/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct {
	cache.Storage
	failSet    bool
	failDelete bool
	failGet    bool
}

func (f *failingStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errors.New("disk on fire")
	}
	return f.Storage.Get(ctx, key)
}

func (f *failingStorage) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errors.New("quota exceeded")
	}
	return f.Storage.Set(ctx, key, value)
}

func (f *failingStorage) Delete(ctx context.Context, key string) error {
	if f.failDelete {
		return errors.New("quota exceeded")
	}
	return f.Storage.Delete(ctx, key)
}

func item(id, name string, price int64) models.CartItem {
	return models.CartItem{ID: id, Name: name, Price: decimal.NewFromInt(price)}
}

func persisted(t *testing.T, storage cache.Storage) models.Cart {
	t.Helper()
	data, err := storage.Get(context.Background(), Key)
	require.NoError(t, err)
	var cart models.Cart
	require.NoError(t, json.Unmarshal(data, &cart))
	return cart
}

func TestLoad_MissingIsEmpty(t *testing.T) {
	store := New(cache.NewMemoryStore().Namespace("s"), nil)

	cart := store.Load(context.Background())
	assert.NotNil(t, cart)
	assert.Empty(t, cart)
}

func TestLoad_CorruptIsEmpty(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemoryStore().Namespace("s")
	require.NoError(t, storage.Set(ctx, Key, []byte(`[{"_id":"a","price":`)))

	store := New(storage, nil)
	assert.Empty(t, store.Load(ctx))
}

func TestLoad_StorageErrorIsEmpty(t *testing.T) {
	storage := &failingStorage{Storage: cache.NewMemoryStore().Namespace("s"), failGet: true}

	store := New(storage, nil)
	assert.Empty(t, store.Load(context.Background()))
}

func TestLoad_NullIsEmpty(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemoryStore().Namespace("s")
	require.NoError(t, storage.Set(ctx, Key, []byte(`null`)))

	store := New(storage, nil)
	cart := store.Load(ctx)
	assert.NotNil(t, cart)
	assert.Empty(t, cart)
}

func TestLoad_ReadsBrowserShape(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemoryStore().Namespace("s")
	raw := `[{"_id":"a","name":"Shirt","description":"cotton","price":20},{"_id":"b","name":"Hat","price":15.5}]`
	require.NoError(t, storage.Set(ctx, Key, []byte(raw)))

	store := New(storage, nil)
	cart := store.Load(ctx)

	require.Len(t, cart, 2)
	assert.Equal(t, "a", cart[0].ID)
	assert.True(t, cart[1].Price.Equal(decimal.RequireFromString("15.5")))
}

func TestReplace_MemoryMatchesStorage(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemoryStore().Namespace("s")
	store := New(storage, nil)

	cart := models.Cart{item("a", "Shirt", 20), item("b", "Hat", 15)}
	require.NoError(t, store.Replace(ctx, cart))

	memory, err := json.Marshal(store.Items())
	require.NoError(t, err)
	stored, err := storage.Get(ctx, Key)
	require.NoError(t, err)
	assert.Equal(t, string(stored), string(memory))
	assert.JSONEq(t, `[{"_id":"a","name":"Shirt","description":"","price":20},{"_id":"b","name":"Hat","description":"","price":15}]`, string(stored))
}

func TestReplace_FailureKeepsPriorState(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{Storage: cache.NewMemoryStore().Namespace("s")}
	store := New(storage, nil)

	require.NoError(t, store.Replace(ctx, models.Cart{item("a", "Shirt", 20)}))

	storage.failSet = true
	err := store.Replace(ctx, models.Cart{item("b", "Hat", 15)})
	require.ErrorIs(t, err, ErrStorage)

	assert.Equal(t, models.Cart{item("a", "Shirt", 20)}, store.Items())
	assert.Equal(t, models.Cart{item("a", "Shirt", 20)}, persisted(t, storage.Storage))
}

func TestReplace_CallerCannotMutateStore(t *testing.T) {
	store := New(cache.NewMemoryStore().Namespace("s"), nil)

	cart := models.Cart{item("a", "Shirt", 20)}
	require.NoError(t, store.Replace(context.Background(), cart))
	cart[0].Name = "changed"

	assert.Equal(t, "Shirt", store.Items()[0].Name)
}

func TestRemove_Scenario(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemoryStore().Namespace("s")
	store := New(storage, nil)
	require.NoError(t, store.Replace(ctx, models.Cart{item("a", "Shirt", 20), item("b", "Hat", 15)}))

	require.NoError(t, store.Remove(ctx, "a"))

	assert.Equal(t, models.Cart{item("b", "Hat", 15)}, store.Items())
	assert.Equal(t, models.Cart{item("b", "Hat", 15)}, persisted(t, storage))
}

func TestRemove_FirstMatchOnly(t *testing.T) {
	ctx := context.Background()
	store := New(cache.NewMemoryStore().Namespace("s"), nil)
	require.NoError(t, store.Replace(ctx, models.Cart{
		item("a", "first", 1), item("b", "Hat", 15), item("a", "second", 2),
	}))

	require.NoError(t, store.Remove(ctx, "a"))

	assert.Equal(t, models.Cart{item("b", "Hat", 15), item("a", "second", 2)}, store.Items())
}

func TestRemove_UnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	store := New(cache.NewMemoryStore().Namespace("s"), nil)
	original := models.Cart{item("a", "Shirt", 20), item("b", "Hat", 15)}
	require.NoError(t, store.Replace(ctx, original))

	require.NoError(t, store.Remove(ctx, "zzz"))

	assert.Equal(t, original, store.Items())
}

func TestRemove_FailureKeepsItem(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{Storage: cache.NewMemoryStore().Namespace("s")}
	store := New(storage, nil)
	require.NoError(t, store.Replace(ctx, models.Cart{item("a", "Shirt", 20)}))

	storage.failSet = true
	assert.ErrorIs(t, store.Remove(ctx, "a"), ErrStorage)
	assert.Equal(t, 1, store.Len())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	storage := cache.NewMemoryStore().Namespace("s")
	store := New(storage, nil)
	require.NoError(t, store.Replace(ctx, models.Cart{item("a", "Shirt", 20)}))

	require.NoError(t, store.Clear(ctx))

	assert.Empty(t, store.Items())
	_, err := storage.Get(ctx, Key)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestClear_DeleteFailureWritesEmptyCart(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{Storage: cache.NewMemoryStore().Namespace("s")}
	store := New(storage, nil)
	require.NoError(t, store.Replace(ctx, models.Cart{item("a", "Shirt", 20)}))

	storage.failDelete = true
	require.NoError(t, store.Clear(ctx))
	assert.Empty(t, store.Items())
	assert.Empty(t, persisted(t, storage))

	// le panier payé ne revient pas au rechargement
	assert.Empty(t, New(storage, nil).Load(ctx))
}

func TestClear_StorageDownStillEmptiesMemory(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{Storage: cache.NewMemoryStore().Namespace("s")}
	store := New(storage, nil)
	require.NoError(t, store.Replace(ctx, models.Cart{item("a", "Shirt", 20)}))

	storage.failDelete = true
	storage.failSet = true
	assert.ErrorIs(t, store.Clear(ctx), ErrStorage)
	assert.Empty(t, store.Items())
}
