package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/target/mmk-jobpipe/internal/migrate"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// TestDBConfig holds configuration for test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig returns default test database configuration.
// Defaults to port 55432 (local test DB from docker-compose test profile).
// CI/CD environments should set TEST_DB_PORT=5432 explicitly.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "jobpipe"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "jobpipe"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "jobpipe"),
	}
}

func (c TestDBConfig) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		c.User, c.Password, net.JoinHostPort(c.Host, c.Port), c.DBName)
}

// SetupTestDB opens the test database, applies migrations and truncates job data.
// The test is skipped when the database is unreachable unless TEST_REQUIRE_DB is set.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db, err := sql.Open("pgx", DefaultTestDBConfig().dsn())
	if err != nil {
		t.Fatal("Failed to open database:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		t.Fatal("Failed to connect to test database. Make sure PostgreSQL is running (docker-compose up -d):", err)
	}

	if _, migrateErr := migrate.Run(ctx, db, nil); migrateErr != nil {
		t.Fatal("Failed to run migrations:", migrateErr)
	}

	CleanupTestDB(t, db)
	t.Cleanup(func() {
		CleanupTestDB(t, db)
		closeAndLog(t, "database", db)
	})

	return db
}

// CleanupTestDB removes all job rows.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "DELETE FROM jobs"); err != nil {
		t.Fatalf("Failed to clean up table jobs: %v", err)
	}
}

// SkipIfNoTestDB skips the test if test database is not available.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()

	db, err := sql.Open("pgx", DefaultTestDBConfig().dsn())
	if err != nil {
		skipOrFail(t, requireDB(), "Test database not available:", err)
		return
	}
	defer closeAndLog(t, "test db", db)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		skipOrFail(t, requireDB(), "Test database not available:", pingErr)
	}
}

// SetupTestRedis creates a Redis client for testing against TEST_REDIS_ADDR (default localhost:56379).
// The selected DB is flushed before use. Tests are skipped if Redis is not available.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr := getEnvOrDefault("TEST_REDIS_ADDR", "localhost:56379")
	dbIndex := 1
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			dbIndex = i
		}
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: dbIndex})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		closeAndLog(t, "redis client", client)
		skipOrFail(t, requireRedis(), fmt.Sprintf("Redis not available for testing at %s:", addr), err)
		return nil
	}

	client.FlushDB(ctx)
	t.Cleanup(func() { closeAndLog(t, "redis client", client) })

	return client
}

// SetupTestMongo connects to TEST_MONGODB_URL (default mongodb://localhost:57017) and returns a
// uniquely named database that is dropped on cleanup. Tests are skipped if MongoDB is not available.
func SetupTestMongo(t TestingTB) *mongo.Database {
	t.Helper()

	uri := getEnvOrDefault("TEST_MONGODB_URL", "mongodb://localhost:57017")
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetServerSelectionTimeout(2 * time.Second))
	if err != nil {
		skipOrFail(t, requireMongo(), "MongoDB not available:", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if pingErr := client.Ping(ctx, nil); pingErr != nil {
		_ = client.Disconnect(context.Background())
		skipOrFail(t, requireMongo(), "MongoDB not available:", pingErr)
		return nil
	}

	db := client.Database(fmt.Sprintf("jobpipe_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		if dropErr := db.Drop(cctx); dropErr != nil {
			t.Logf("warning: failed to drop test database: %v", dropErr)
		}
		if discErr := client.Disconnect(cctx); discErr != nil {
			t.Logf("warning: failed to disconnect mongo client: %v", discErr)
		}
	})

	return db
}

// RunConcurrent starts all funcs at the same time and returns their errors in order.
func RunConcurrent(funcs ...func() error) []error {
	start := make(chan struct{})
	errs := make([]error, len(funcs))

	var wg sync.WaitGroup
	for i, fn := range funcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}()
	}
	close(start)
	wg.Wait()

	return errs
}

// Repeat returns n copies of fn for RunConcurrent.
func Repeat(n int, fn func() error) []func() error {
	out := make([]func() error, n)
	for i := range out {
		out[i] = fn
	}
	return out
}

// TestTimeProvider is a settable clock safe for concurrent use.
type TestTimeProvider struct {
	mu          sync.Mutex
	currentTime time.Time
}

// NewTestTimeProvider creates a new test time provider.
func NewTestTimeProvider(startTime time.Time) *TestTimeProvider {
	return &TestTimeProvider{currentTime: startTime}
}

// Now returns the current time.
func (p *TestTimeProvider) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTime
}

// SetTime sets the current time.
func (p *TestTimeProvider) SetTime(t time.Time) {
	p.mu.Lock()
	p.currentTime = t
	p.mu.Unlock()
}

// AddTime advances the current time by the given duration.
func (p *TestTimeProvider) AddTime(d time.Duration) {
	p.mu.Lock()
	p.currentTime = p.currentTime.Add(d)
	p.mu.Unlock()
}

// TestTime returns a fixed reference timestamp.
func TestTime() time.Time {
	return time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)
}

func skipOrFail(t TestingTB, required bool, args ...any) {
	t.Helper()
	if required {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

func closeAndLog(t TestingTB, name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		t.Logf("warning: failed to close %s: %v", name, err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }
func requireMongo() bool { return envBool("TEST_REQUIRE_MONGO") || envBool("TEST_REQUIRE_INFRA") }

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to the given time value.
func TimePtr(t time.Time) *time.Time {
	return &t
}
