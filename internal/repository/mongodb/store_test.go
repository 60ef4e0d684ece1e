package mongodb

import (
	"context"
	"testing"

	"e2e_relay/internal/repository"
	"e2e_relay/internal/repository/repotest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("mongo engine tests need docker")
	}

	ctx := context.Background()
	container, err := tcmongo.Run(ctx, "mongo:7")
	if err != nil {
		t.Skipf("failed to start mongo container: %s", err)
	}
	testcontainers.CleanupContainer(t, container)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	repotest.Run(t, func(t *testing.T) repository.Store {
		store, err := Open(ctx, uri, "relay_"+uuid.NewString()[:8])
		require.NoError(t, err)
		require.NoError(t, store.Migrate(ctx))
		t.Cleanup(func() {
			_ = store.db.Drop(context.Background())
			_ = store.Close(context.Background())
		})
		return store
	})
}
