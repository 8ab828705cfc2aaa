package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/effective-security/librarian/chatmodel"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"
)

func Test_RedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7",
		testcontainers.WithConfigModifier(func(config *container.Config) {
			config.Env = []string{
				"ALLOW_EMPTY_PASSWORD=yes",
			}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	state, err := redisContainer.State(ctx)
	require.NoError(t, err)
	require.True(t, state.Running)

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(host)
	require.NoError(t, err)

	client := redis.NewClient(options)
	t.Cleanup(func() {
		_ = client.Close()
	})
	require.NoError(t, client.Ping(ctx).Err(), "failed to connect to Redis")

	root := fmt.Sprintf("test-%d", time.Now().Unix())

	t.Run("scenario", func(t *testing.T) {
		st := store.NewRedisStore(client, store.RedisOptions{
			Prefix: root + "/scenario",
			TTL:    time.Hour,
		})
		testMessageStore(t, st)
	})

	t.Run("limit", func(t *testing.T) {
		st := store.NewRedisStore(client, store.RedisOptions{
			Prefix:       root + "/limit",
			HistoryLimit: 2,
		})
		ctx := chatmodel.WithChatContext(ctx, chatmodel.NewChatContext("limited", nil))
		for i := range 4 {
			require.NoError(t, st.Add(ctx, llms.MessageFromTextParts(llms.RoleHuman, fmt.Sprintf("msg %d", i))))
		}
		msgs := st.Messages(ctx)
		require.Len(t, msgs, 2)
		assert.Equal(t, "msg 2", msgs[0].GetContent())
		assert.Equal(t, "msg 3", msgs[1].GetContent())
	})

	t.Run("ttl", func(t *testing.T) {
		prefix := root + "/ttl"
		st := store.NewRedisStore(client, store.RedisOptions{
			Prefix: prefix,
			TTL:    time.Minute,
		})
		ctx := chatmodel.WithChatContext(ctx, chatmodel.NewChatContext("expiring", nil))
		require.NoError(t, st.Add(ctx, llms.MessageFromTextParts(llms.RoleHuman, "hello")))

		ttl, err := client.TTL(ctx, "/"+prefix+"/chatstore/messages/expiring").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)

		// expired info is removed from the list
		require.NoError(t, client.Del(ctx, "/"+prefix+"/chatstore/info/expiring").Err())
		chats, err := st.ListChats(ctx)
		require.NoError(t, err)
		assert.Empty(t, chats)
	})
}
