// Command pgpool-demo exercises the connection pool against a live PostgreSQL
// instance: it applies the bundled schema, fills the pool eagerly, then runs a
// rate-limited concurrent workload through shared leases.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/coachpo/pgpool"
	"github.com/coachpo/pgpool/config"
	"github.com/coachpo/pgpool/internal/migrations"
	"github.com/coachpo/pgpool/lib/async"
	"github.com/coachpo/pgpool/lib/telemetry"
	pgadapter "github.com/coachpo/pgpool/postgres"
)

const (
	defaultConfigPath        = "config/pgpool.yaml"
	defaultTaskCount         = 32
	workerCount              = 8
	workloadRate             = rate.Limit(50)
	readyTimeout             = 30 * time.Second
	poolShutdownTimeout      = 10 * time.Second
	workersShutdownTimeout   = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath, "Path to the YAML configuration file")
	tasks := flag.Int("tasks", defaultTaskCount, "Number of workload tasks to run")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "pgpool-demo ", log.LstdFlags)

	settings, loadedFromFile, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	if settings.Database.DSN == "" {
		logger.Fatalf("database DSN required: set database.dsn in %s or PGPOOL_DSN", *cfgPath)
	}

	_, telemetryShutdown, err := telemetry.Init(ctx, settings.Telemetry)
	if err != nil {
		logger.Fatalf("initialise telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer shutdownCancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	readyCtx, readyCancel := context.WithTimeout(ctx, readyTimeout)
	defer readyCancel()
	if err := pgadapter.WaitReady(readyCtx, settings.Database.DSN); err != nil {
		logger.Fatalf("database not ready: %v", err)
	}

	if err := migrations.ApplyEmbedded(ctx, settings.Database.DSN, logger); err != nil {
		logger.Fatalf("apply migrations: %v", err)
	}

	pool, err := pgadapter.NewPool(ctx, settings.Database.Pool.Name, settings.Database.DSN,
		pgpool.WithCapacity(settings.Database.Pool.Capacity))
	if err != nil {
		logger.Fatalf("build pool: %v", err)
	}
	pgpool.ObservePoolMetrics(pool)
	logStat(logger, "pool filled", pool)

	if err := runWorkload(ctx, pool, settings.Database.Pool.AcquireTimeout.Std(), *tasks, logger); err != nil {
		logger.Printf("workload: %v", err)
	}

	if err := sharedLeaseSample(ctx, pool, logger); err != nil {
		logger.Printf("shared lease sample: %v", err)
	}

	logStat(logger, "workload complete", pool)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), poolShutdownTimeout)
	defer shutdownCancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("pool shutdown: %v", err)
	}
	logger.Printf("pool shut down cleanly")
}

func runWorkload(ctx context.Context, pool *pgpool.Pool, acquireTimeout time.Duration, tasks int, logger *log.Logger) error {
	workers, err := async.NewWorkers(workerCount, tasks)
	if err != nil {
		return err
	}

	limiter := rate.NewLimiter(workloadRate, 1)
	var done sync.WaitGroup
	for i := 0; i < tasks; i++ {
		n := i
		done.Add(1)
		err := workers.Submit(ctx, func(taskCtx context.Context) error {
			defer done.Done()
			if err := runTask(taskCtx, pool, limiter, acquireTimeout, n); err != nil {
				logger.Printf("task %d: %v", n, err)
				return err
			}
			return nil
		})
		if err != nil {
			done.Done()
			logger.Printf("submit task %d: %v", n, err)
		}
	}
	done.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), workersShutdownTimeout)
	defer cancel()
	return workers.Shutdown(shutdownCtx)
}

func runTask(ctx context.Context, pool *pgpool.Pool, limiter *rate.Limiter, acquireTimeout time.Duration, n int) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	acquireCtx := ctx
	if acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, acquireTimeout)
		defer cancel()
	}
	lease, err := pool.Acquire(acquireCtx)
	if err != nil {
		return err
	}
	defer lease.Release()

	conn := pgadapter.Conn(lease)
	if _, err := conn.Exec(ctx, "INSERT INTO notes (body) VALUES ($1)", fmt.Sprintf("note %d", n)); err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// noteCounter keeps a shared lease alive beyond its original owner's scope,
// the fan-out pattern Acquire is designed for.
type noteCounter struct {
	lease *pgpool.Lease
}

func (c *noteCounter) count(ctx context.Context) (int64, error) {
	var n int64
	err := pgadapter.Conn(c.lease).QueryRow(ctx, "SELECT count(*) FROM notes").Scan(&n)
	return n, err
}

func sharedLeaseSample(ctx context.Context, pool *pgpool.Pool, logger *log.Logger) error {
	consumer := new(noteCounter)

	err := func() error {
		lease, err := pool.Acquire(ctx)
		if err != nil {
			return err
		}
		defer lease.Release()
		consumer.lease = lease.Share()
		return nil
	}()
	if err != nil {
		return err
	}
	defer consumer.lease.Release()

	// The original owner is gone; the consumer's share keeps the conn leased.
	total, err := consumer.count(ctx)
	if err != nil {
		return err
	}
	logger.Printf("notes stored: %d", total)
	return nil
}

func logStat(logger *log.Logger, msg string, pool *pgpool.Pool) {
	data, err := pgpool.EncodeJSON(pool.Stat())
	if err != nil {
		logger.Printf("%s: stat encode: %v", msg, err)
		return
	}
	logger.Printf("%s: pool=%s stat=%s", msg, pool.Name(), data)
}
