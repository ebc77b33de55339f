package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestMongo(t *testing.T) *MongoStorage {
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

	s := NewMongoStorage(db, "storage")
	require.NoError(t, s.CreateIndexes(ctx))
	return s
}

func TestMongoStorage_Contract(t *testing.T) {
	runContract(t, setupTestMongo(t))
}
