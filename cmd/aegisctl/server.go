package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/db"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/endpoints"
	"github.com/aegisid/aegisid/pkg/server/middleware"
)

func defaultBindAddress() string {
	return config.Get().BindAddress
}

func defaultPort() string {
	return strconv.Itoa(config.Get().Port)
}

func defaultPortInt() int {
	return config.Get().Port
}

// loadTokenKey reads and checks AEGIS_TOKEN_KEY.
func loadTokenKey() ([]byte, error) {
	keyB64, ok := os.LookupEnv("AEGIS_TOKEN_KEY")
	if !ok {
		return nil, fmt.Errorf("AEGIS_TOKEN_KEY environment variable is required")
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("bad AEGIS_TOKEN_KEY: %w", err)
	}
	if len(key) != middleware.TokenKeySize {
		return nil, fmt.Errorf("AEGIS_TOKEN_KEY must decode to %d bytes, got %d", middleware.TokenKeySize, len(key))
	}
	return key, nil
}

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the AegisID application server",
	Long: `Run the AegisID application server.

To run the server requires the environment variables AEGIS_TOKEN_KEY and
DATABASE_URL.

By default, database migrations are run on startup. Use --no-migrate to skip.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Validate required environment variables first (fail fast)
		tokenKey, err := loadTokenKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		if os.Getenv("DATABASE_URL") == "" {
			fmt.Fprintln(os.Stderr, "DATABASE_URL environment variable is required")
			os.Exit(1)
		}

		// Run migrations unless --no-migrate is set
		noMigrate, _ := cmd.Flags().GetBool("no-migrate")
		if !noMigrate {
			log.Println("Running database migrations...")
			if err := runMigrations(); err != nil {
				fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
				os.Exit(1)
			}
		}

		database, err := db.Connect(db.Config{})
		if err != nil {
			fmt.Fprintln(os.Stderr, "Unable to connect to DB:", err)
			os.Exit(1)
		}

		host, _ := cmd.Flags().GetString("bind-address")
		port, _ := cmd.Flags().GetString("port")

		s, err := server.NewServer(database, config.Get(), tokenKey, host, port)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Unable to build server:", err)
			os.Exit(1)
		}

		endpoints.RegisterAll(s)

		// Install the stored policy, if any, before taking traffic.
		if err := s.ActivatePolicy(); err != nil {
			fmt.Fprintln(os.Stderr, "Unable to activate stored policy:", err)
			os.Exit(1)
		}

		go func() {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			for sig := range sigChan {
				if sig == syscall.SIGHUP {
					log.Println("Reloading configuration...")
					if err := config.Reload(); err != nil {
						log.Printf("Configuration reload failed: %v", err)
						continue
					}
					if err := s.ActivatePolicy(); err != nil {
						log.Printf("Policy reload failed: %v", err)
					}
					continue
				}

				log.Println("Shutting down...")
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := s.Shutdown(ctx); err != nil {
					log.Printf("Shutdown error: %v", err)
				}
				cancel()
				return
			}
		}()

		log.Printf("Running server at http://%s:%s...\n", host, port)
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringP("port", "p", defaultPort(), "server listen port")
	serverCmd.Flags().StringP("bind-address", "b", defaultBindAddress(), "server bind address")
	serverCmd.Flags().Bool("no-migrate", false, "skip running database migrations on start")
}
