// Command carbonctl is the operator CLI for carbonledger: migrations,
// organization bootstrap, reference-data seeding and key issuance.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/carbonledger/internal/cache"
	"github.com/kiranshivaraju/carbonledger/internal/catalog"
	"github.com/kiranshivaraju/carbonledger/internal/config"
	"github.com/kiranshivaraju/carbonledger/internal/credential"
	"github.com/kiranshivaraju/carbonledger/internal/seed"
	"github.com/kiranshivaraju/carbonledger/internal/store"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
	"github.com/spf13/cobra"
)

const opTimeout = 30 * time.Second

type options struct {
	databaseURL   string
	redisURL      string
	namespace     string
	migrationsDir string
	keyPrefix     string
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "carbonctl",
		Short:        "Operator CLI for carbonledger",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", envOr("DATABASE_URL", ""), "Postgres URL (env DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.redisURL, "redis-url", envOr("REDIS_URL", ""), "Redis URL for cache invalidation (env REDIS_URL)")
	root.PersistentFlags().StringVar(&opts.namespace, "redis-namespace", envOr("REDIS_NAMESPACE", cache.DefaultNamespace), "Key namespace shared with the API server (env REDIS_NAMESPACE)")
	root.PersistentFlags().StringVar(&opts.migrationsDir, "migrations", "migrations", "Directory holding SQL migrations")
	root.PersistentFlags().StringVar(&opts.keyPrefix, "key-prefix", envOr("API_KEY_PREFIX", credential.DefaultPrefix), "Prefix of issued API keys (env API_KEY_PREFIX)")

	root.AddCommand(newMigrateCmd(opts), newOrgsCmd(opts), newSeedCmd(opts), newKeysCmd(opts))
	return root
}

func (o *options) requireDatabase() error {
	if o.databaseURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	return nil
}

// withStore opens a short-lived pool, runs fn and closes the pool.
func (o *options) withStore(ctx context.Context, fn func(ctx context.Context, s store.Store) error) error {
	if err := o.requireDatabase(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             o.databaseURL,
		MaxOpenConns:    2,
		ConnMaxLifetime: opTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, store.NewPostgresStore(pool))
}

// ─── migrate ─────────────────────────────────────────────────────────────────

func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.requireDatabase(); err != nil {
				return err
			}
			if err := store.RunMigrations(opts.databaseURL, opts.migrationsDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}, &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.requireDatabase(); err != nil {
				return err
			}
			if err := store.RollbackMigration(opts.databaseURL, opts.migrationsDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
			return nil
		},
	})
	return cmd
}

// ─── orgs ────────────────────────────────────────────────────────────────────

func newOrgsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orgs",
		Short: "Manage organizations",
	}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an organization and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("--name must not be blank")
			}
			return opts.withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				org := &models.Organization{ID: uuid.New(), Name: name}
				if err := s.CreateOrganization(ctx, org); err != nil {
					return fmt.Errorf("create organization: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", org.ID, org.Name)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "Organization name")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	return cmd
}

// ─── seed ────────────────────────────────────────────────────────────────────

func newSeedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Upsert emission categories and factors from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer fh.Close()

			file, err := seed.Load(fh)
			if err != nil {
				return err
			}

			return opts.withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				sum, err := seed.Apply(ctx, s, file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories, %d factors\n", sum.Categories, sum.Factors)
				return opts.invalidateCatalog(ctx, s)
			})
		},
	}
}

// invalidateCatalog drops the cached factor listing so the API serves the new data.
func (o *options) invalidateCatalog(ctx context.Context, s store.Store) error {
	if o.redisURL == "" {
		slog.Warn("no redis url, cached factor listing expires on its own TTL")
		return nil
	}
	rc, err := cache.NewRedisCache(o.redisURL, o.namespace)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer rc.Close()

	if err := catalog.NewService(s, rc, 0, 0).Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate factor cache: %w", err)
	}
	return nil
}

// ─── keys ────────────────────────────────────────────────────────────────────

func newKeysCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage organization API keys",
	}

	var orgFlag, name string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an API key for an organization and print it once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgID, err := uuid.Parse(strings.TrimSpace(orgFlag))
			if err != nil {
				return fmt.Errorf("--org must be a UUID: %w", err)
			}
			return opts.withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				issued, err := credential.NewService(s, opts.keyPrefix, 0).Generate(ctx, orgID, nil, name)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "key_id:  %s\n", issued.Key.ID)
				fmt.Fprintf(w, "name:    %s\n", issued.Key.Name)
				fmt.Fprintf(w, "api_key: %s\n", issued.RawKey)
				fmt.Fprintln(w, "Store this key now; it cannot be shown again.")
				return nil
			})
		},
	}
	issue.Flags().StringVar(&orgFlag, "org", "", "Organization id")
	issue.Flags().StringVar(&name, "name", "", "Key name (default \"Default Key\")")
	_ = issue.MarkFlagRequired("org")

	cmd.AddCommand(issue)
	return cmd
}
