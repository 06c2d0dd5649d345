package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/pgpool"
	pgadapter "github.com/coachpo/pgpool/postgres"
)

func TestPoolAgainstRealPostgres(t *testing.T) {
	if os.Getenv("PGPOOL_TEST_INTEGRATION") == "" {
		t.Skip("set PGPOOL_TEST_INTEGRATION=1 to run the containerised test")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "app"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("container endpoint: %v", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s/app?sslmode=disable", endpoint)

	readyCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := pgadapter.WaitReady(readyCtx, dsn); err != nil {
		t.Fatalf("database never became ready: %v", err)
	}

	pool, err := pgadapter.NewPool(ctx, "integration", dsn, pgpool.WithCapacity(3))
	if err != nil {
		t.Fatalf("build pool: %v", err)
	}

	if stat := pool.Stat(); stat.Idle != 3 {
		t.Fatalf("expected 3 idle conns after eager fill, got %+v", stat)
	}

	var wg conc.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Go(func() {
			lease, err := pool.Acquire(ctx)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer lease.Release()

			var one int
			if err := pgadapter.Conn(lease).QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
				t.Errorf("query failed: %v", err)
				return
			}
			if one != 1 {
				t.Errorf("expected 1, got %d", one)
			}
		})
	}
	wg.Wait()

	if stat := pool.Stat(); stat.Idle != 3 || stat.Leased != 0 {
		t.Errorf("expected quiescent pool after workload, got %+v", stat)
	}

	if err := pool.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
