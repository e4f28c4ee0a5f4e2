package mongo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"photobox/internal/store"
	"photobox/internal/store/storetest"

	"github.com/google/uuid"
)

func TestStoreIntegration(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI is required for integration tests")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		name := "photobox_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		client, st, err := Connect(ctx, uri, name)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		t.Cleanup(func() {
			ctx := context.Background()
			_ = client.Database(name).Drop(ctx)
			_ = client.Disconnect(ctx)
		})
		return st
	})
}
