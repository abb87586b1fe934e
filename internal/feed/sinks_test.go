package feed

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irvifa/collaborative-editor/internal/document"
)

func TestRedisSink_Publish(t *testing.T) {
	url := os.Getenv("COLLAB_TEST_REDIS_URL")
	if url == "" {
		t.Skip("COLLAB_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := DialRedis(ctx, url, "collabtext:test")
	require.NoError(t, err)
	defer sink.Close()

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	sub := redis.NewClient(opts).Subscribe(ctx, "collabtext:test")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	rec := NewRecord("s1", document.DeleteAt(2, 3, 9))
	require.NoError(t, sink.Write(ctx, rec))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Edit, got.Edit)
}

func TestPostgresSink_Write(t *testing.T) {
	url := os.Getenv("COLLAB_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COLLAB_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := DialPostgres(ctx, url)
	require.NoError(t, err)
	defer sink.Close()

	rec := NewRecord("s1", document.InsertAt(0, "héllo", 3))
	require.NoError(t, sink.Write(ctx, rec))

	var text string
	var version int64
	err = sink.pool.QueryRow(ctx,
		`SELECT insert_text, version FROM edit_log WHERE id = $1`, rec.ID).Scan(&text, &version)
	require.NoError(t, err)
	assert.Equal(t, "héllo", text)
	assert.Equal(t, int64(3), version)
}
