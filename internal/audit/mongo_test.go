package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func setupTestRecorder(t *testing.T) (*MongoRecorder, func()) {
	if testing.Short() {
		t.Skip("skipping mongodb container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	recorder := NewMongoRecorder(db, "order_audit")
	require.NoError(t, recorder.CreateIndexes(ctx))

	cleanup := func() {
		_ = recorder.Close(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return recorder, cleanup
}

func TestMongoRecorder_RecordAndList(t *testing.T) {
	recorder, cleanup := setupTestRecorder(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, recorder.Record(ctx, &OrderAudit{
		OrderID: "order-1", EventType: EventOrderCreated, NewStatus: "pending", Timestamp: base,
	}))
	require.NoError(t, recorder.Record(ctx, &OrderAudit{
		OrderID: "order-1", EventType: EventOrderStatusChanged, OldStatus: "pending", NewStatus: "confirmed",
		Actor: "staff-7", Timestamp: base.Add(time.Second),
	}))
	require.NoError(t, recorder.Record(ctx, &OrderAudit{
		OrderID: "order-2", EventType: EventOrderCreated, NewStatus: "pending",
	}))

	entries, err := recorder.ListByOrder(ctx, "order-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "confirmed", entries[0].NewStatus, "newest first")
	assert.Equal(t, "staff-7", entries[0].Actor)
	assert.False(t, entries[1].ID.IsZero())

	limited, err := recorder.ListByOrder(ctx, "order-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := recorder.ListByOrder(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	require.NoError(t, r.Record(context.Background(), &OrderAudit{OrderID: "x"}))
	entries, err := r.ListByOrder(context.Background(), "x", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPingOrDisconnect_ReleasesClientWhenUnreachable(t *testing.T) {
	// nothing listens on port 1
	client, err := mongo.Connect(context.Background(), options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(200*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = pingOrDisconnect(ctx, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping MongoDB")

	assert.ErrorIs(t, client.Disconnect(context.Background()), mongo.ErrClientDisconnected,
		"client should already be disconnected")
}

func TestConnectMongoDB_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	db, err := ConnectMongoDB(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200", "testdb")
	require.Error(t, err)
	assert.Nil(t, db)
}
