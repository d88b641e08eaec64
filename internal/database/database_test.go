package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer CloseRedis(client, nil)

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.Equal(t, "v", client.Get(context.Background(), "k").Val())
}

func TestConnectRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := ConnectRedis(context.Background(), RedisConfig{Addr: addr}, nil)

	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestConnectRedis_WrongPassword(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")

	_, err := ConnectRedis(context.Background(), RedisConfig{Addr: mr.Addr(), Password: "nope"}, nil)

	assert.Error(t, err)
}
