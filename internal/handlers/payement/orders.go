package payement

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cedra_cart/internal/models"

	"github.com/redis/go-redis/v9"
)

const maxOrdersPerUser = 100

// OrderStore garde l'historique des commandes, la plus récente en premier.
type OrderStore interface {
	Save(ctx context.Context, order models.Order) error
	List(ctx context.Context, userID string) ([]models.Order, error)
}

type RedisOrders struct {
	client *redis.Client
}

func NewRedisOrders(client *redis.Client) *RedisOrders {
	return &RedisOrders{client: client}
}

func ordersKey(userID string) string {
	return "orders:" + userID
}

func (r *RedisOrders) Save(ctx context.Context, order models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encodage commande: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, ordersKey(order.UserID), data)
	pipe.LTrim(ctx, ordersKey(order.UserID), 0, maxOrdersPerUser-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

func (r *RedisOrders) List(ctx context.Context, userID string) ([]models.Order, error) {
	raw, err := r.client.LRange(ctx, ordersKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	orders := make([]models.Order, 0, len(raw))
	for _, item := range raw {
		var order models.Order
		if err := json.Unmarshal([]byte(item), &order); err != nil {
			return nil, fmt.Errorf("décodage commande: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// MemoryOrders sert le mode local sans Redis.
type MemoryOrders struct {
	mu     sync.RWMutex
	orders map[string][]models.Order
}

func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{orders: make(map[string][]models.Order)}
}

func (m *MemoryOrders) Save(_ context.Context, order models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]models.Order{order}, m.orders[order.UserID]...)
	if len(list) > maxOrdersPerUser {
		list = list[:maxOrdersPerUser]
	}
	m.orders[order.UserID] = list
	return nil
}

func (m *MemoryOrders) List(_ context.Context, userID string) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Order, len(m.orders[userID]))
	copy(out, m.orders[userID])
	return out, nil
}
