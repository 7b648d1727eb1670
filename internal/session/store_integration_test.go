package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/studylens/studylens/db"
	"github.com/studylens/studylens/internal/storage"
)

func setupTestDB(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("studylens_test"),
		postgres.WithUsername("studylens_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connection string: %v", err)
	}

	if err := db.Migrate(connStr); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := storage.Open(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(context.Background())
	}
	return pool, cleanup
}

func TestStoreLifecycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pool, cleanup := setupTestDB(t, ctx)
	defer cleanup()

	store := NewStore(pool)

	sess, err := store.Create(ctx, "biology revision")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "biology revision" {
		t.Errorf("title = %q, want %q", got.Title, "biology revision")
	}

	if err := store.AttachDocuments(ctx, sess.ID, []string{"doc-1", "doc-2", "doc-1"}); err != nil {
		t.Fatalf("AttachDocuments: %v", err)
	}
	docs, err := store.Documents(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("attached documents = %v, want deduplicated pair", docs)
	}

	if err := store.DetachDocuments(ctx, sess.ID, []string{"doc-1"}); err != nil {
		t.Fatalf("DetachDocuments: %v", err)
	}
	docs, err = store.Documents(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Documents after detach: %v", err)
	}
	if len(docs) != 1 || docs[0] != "doc-2" {
		t.Errorf("documents after detach = %v, want [doc-2]", docs)
	}

	resolver := NewResolver(store, nil)
	scope := resolver.Resolve(ctx, sess.ID.String())
	if !scope.Scoped() || len(scope.Documents) != 1 {
		t.Errorf("resolved scope = %+v, want scoped to one document", scope)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	// Cascade removed attachments; the resolver now fails open.
	scope = resolver.Resolve(ctx, sess.ID.String())
	if scope.Scoped() {
		t.Error("deleted session should resolve to an unscoped search")
	}

	if err := store.AttachDocuments(ctx, uuid.New(), []string{"doc-9"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("attach to absent session = %v, want ErrNotFound", err)
	}
}
