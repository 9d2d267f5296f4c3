package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store/repo"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/pkg/database"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/pkg/utilities"
)

// Version is set at build time.
var Version = "dev"

const clientIDFile = "client-id"

// NewRootCmd builds the authctl command tree.
func NewRootCmd() *cobra.Command {
	var server, dsn, stateDir string

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Interactive client for the appwrite auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), server, dsn, stateDir)
		},
	}
	home, _ := os.UserHomeDir()
	root.Flags().StringVar(&server, "server", "http://localhost:3000", "base URL of the auth service")
	root.Flags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres DSN for persisting the auth snapshot")
	root.Flags().StringVar(&stateDir, "state-dir", filepath.Join(home, ".authctl"), "directory holding the client id")

	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "authctl %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func run(ctx context.Context, server, dsn, stateDir string) error {
	logCfg := utilities.ConfigFromEnv()
	if os.Getenv("LOG_LEVEL") == "" {
		logCfg.Level = "warn"
	}
	lg, err := utilities.Init(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer lg.Sync()
	logger := lg.Sugar()

	var persister store.Persister
	if dsn != "" {
		db, err := database.Connect(ctx, database.Config{DSN: dsn, MaxConns: 2})
		if err != nil {
			return err
		}
		defer db.Close()

		snapshots := repo.NewSnapshotRepo(db)
		if err := snapshots.EnsureTable(ctx); err != nil {
			return fmt.Errorf("ensure snapshot table: %w", err)
		}
		id, err := LoadClientID(stateDir)
		if err != nil {
			return err
		}
		logger.Infow("persisting auth snapshot", "client_id", id)
		persister = snapshots.For(id)
	}

	app, err := NewApp(Options{Server: server, Persister: persister, Logger: logger})
	if err != nil {
		return err
	}
	app.Run(ctx)
	return nil
}

// LoadClientID returns the client id stored in dir, creating one on first use.
func LoadClientID(dir string) (string, error) {
	path := filepath.Join(dir, clientIDFile)
	raw, err := os.ReadFile(path)
	if err == nil {
		if id, perr := uuid.Parse(strings.TrimSpace(string(raw))); perr == nil {
			return id.String(), nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read client id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write client id: %w", err)
	}
	return id, nil
}
