package integration

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/endpoints"
)

// TestContext holds all the resources needed for integration tests: the
// postgres container, a database handle for seeding and assertions, and
// one running server.
type TestContext struct {
	DB          *gorm.DB
	RawDB       *sql.DB
	Container   testcontainers.Container
	ServerURL   string
	DatabaseURL string
	TokenKey    []byte
	HTTPClient  *http.Client
	Cancel      context.CancelFunc

	ServerProcess *exec.Cmd
	InlineServer  *server.Server
	InlineMode    bool
	BinaryPath    string
}

// NewTestContext creates a new test context with a PostgreSQL testcontainer.
// Modes:
//   - Binary mode (default): Set AEGIS_BINARY to the path of the aegisctl binary
//   - Inline mode: Set AEGIS_INLINE=1 to run the server in-process (no binary needed)
func NewTestContext(ctx context.Context) (*TestContext, error) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}
	migrationsDir := filepath.Join(projectRoot, "db", "migrations")

	inlineMode := os.Getenv("AEGIS_INLINE") == "1"
	binaryPath := os.Getenv("AEGIS_BINARY")

	if !inlineMode && binaryPath == "" {
		return nil, fmt.Errorf("Either AEGIS_BINARY or AEGIS_INLINE=1 is required.\n\nBinary mode:\n  go build -o aegisctl ./cmd/aegisctl\n  INTEGRATION_TEST=1 AEGIS_BINARY=$(pwd)/aegisctl go test -v ./test/integration/...\n\nInline mode:\n  INTEGRATION_TEST=1 AEGIS_INLINE=1 go test -v ./test/integration/...")
	}

	if !inlineMode {
		if _, err := os.Stat(binaryPath); err != nil {
			return nil, fmt.Errorf("AEGIS_BINARY path does not exist: %s", binaryPath)
		}
		log.Printf("Using binary: %s", binaryPath)
	} else {
		log.Println("Using inline server mode")
	}

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("aegis_test"),
		tcpostgres.WithUsername("aegis"),
		tcpostgres.WithPassword("aegis"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	connStr := fmt.Sprintf("postgres://aegis:aegis@%s:%s/aegis_test?sslmode=disable", host, port.Port())

	// Connect with GORM for test seeding and assertions
	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
		DSN:                  connStr,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rawDB, err := db.DB()
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get raw db: %w", err)
	}

	if err := runMigrations(rawDB, migrationsDir); err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Deterministic signing key so tokens survive a server restart within
	// the suite
	tokenKey := make([]byte, 32)
	for i := range tokenKey {
		tokenKey[i] = byte(i)
	}

	serverPort := "18080"
	serverURL := fmt.Sprintf("http://127.0.0.1:%s", serverPort)

	var serverProcess *exec.Cmd
	var inlineServer *server.Server
	var cancel context.CancelFunc

	if inlineMode {
		inlineServer, cancel, err = startInlineServer(db, tokenKey, serverPort)
		if err != nil {
			_ = pgContainer.Terminate(ctx)
			return nil, fmt.Errorf("failed to start inline server: %w", err)
		}
	} else {
		serverProcess, cancel, err = startBinary(binaryPath, connStr, tokenKey, serverPort)
		if err != nil {
			_ = pgContainer.Terminate(ctx)
			return nil, fmt.Errorf("failed to start server binary: %w", err)
		}
	}

	if err := waitForServer(serverURL, 30*time.Second); err != nil {
		cancel()
		if serverProcess != nil && serverProcess.Process != nil {
			_ = serverProcess.Process.Kill()
		}
		_ = pgContainer.Terminate(ctx)
		return nil, fmt.Errorf("server failed to become ready: %w", err)
	}

	return &TestContext{
		DB:            db,
		RawDB:         rawDB,
		Container:     pgContainer,
		ServerURL:     serverURL,
		DatabaseURL:   connStr,
		TokenKey:      tokenKey,
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
		Cancel:        cancel,
		ServerProcess: serverProcess,
		InlineServer:  inlineServer,
		InlineMode:    inlineMode,
		BinaryPath:    binaryPath,
	}, nil
}

// startInlineServer starts the server in-process (no binary needed)
func startInlineServer(db *gorm.DB, tokenKey []byte, port string) (*server.Server, context.CancelFunc, error) {
	_, cancel := context.WithCancel(context.Background())

	s, err := server.NewServer(db, config.Get(), tokenKey, "127.0.0.1", port)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	endpoints.RegisterAll(s)

	if err := s.ActivatePolicy(); err != nil {
		cancel()
		return nil, nil, err
	}

	go func() {
		_ = s.Start()
	}()

	return s, cancel, nil
}

// startBinary starts the aegisctl server binary
func startBinary(binaryPath, dbURL string, tokenKey []byte, port string) (*exec.Cmd, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// Use --no-migrate since the suite already ran migrations
	cmd := exec.CommandContext(ctx, binaryPath, "server", "--no-migrate", "-b", "127.0.0.1", "-p", port)
	cmd.Env = append(os.Environ(),
		"DATABASE_URL="+dbURL,
		"AEGIS_TOKEN_KEY="+base64.StdEncoding.EncodeToString(tokenKey),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start binary: %w", err)
	}

	return cmd, cancel, nil
}

// waitForServer polls the health endpoint until it responds or times out
func waitForServer(serverURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(serverURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server did not become ready within %v", timeout)
}

// Close cleans up all test resources
func (tc *TestContext) Close(ctx context.Context) {
	if tc.InlineServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = tc.InlineServer.Shutdown(shutdownCtx)
		cancel()
	}
	if tc.Cancel != nil {
		tc.Cancel()
	}
	if tc.ServerProcess != nil && tc.ServerProcess.Process != nil {
		_ = tc.ServerProcess.Process.Kill()
		_, _ = tc.ServerProcess.Process.Wait()
	}
	if tc.RawDB != nil {
		_ = tc.RawDB.Close()
	}
	if tc.Container != nil {
		_ = tc.Container.Terminate(ctx)
	}
}

// findProjectRoot locates the project root directory
func findProjectRoot() (string, error) {
	paths := []string{
		"../..",
		"..",
		".",
	}

	for _, p := range paths {
		goMod := filepath.Join(p, "go.mod")
		if _, err := os.Stat(goMod); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", fmt.Errorf("project root not found (looking for go.mod)")
}

// runMigrations executes the up migrations in order against a clean
// database.
func runMigrations(db *sql.DB, migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("migration %s: %w", filepath.Base(file), err)
		}
	}

	return nil
}
