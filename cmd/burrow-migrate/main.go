package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/appctx"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/db"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/migrate"
	"github.com/cuemby/burrow/pkg/model"
	"github.com/cuemby/burrow/pkg/orm"
	"github.com/cuemby/burrow/pkg/schema"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow-migrate",
	Short: "Generate and apply Burrow schema migrations",
	Long: `burrow-migrate diffs the registered entity definitions against the
cumulative template schema, writes versioned .migration files, and applies
pending migrations to tenant namespaces.`,
}

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(registerCmd)
}

func setup() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel)})
	if err := model.RegisterAll(schema.Default); err != nil {
		return nil, fmt.Errorf("failed to register models: %w", err)
	}
	return cfg, nil
}

var generateCmd = &cobra.Command{
	Use:   "generate [name]",
	Short: "Diff the registered entities and write a migration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		generator := migrate.NewGenerator(schema.Default, cfg.MigrationsDir, cfg.SchemaFile)
		filename, err := generator.Generate(args[0])
		if err != nil {
			return err
		}
		if filename == "" {
			fmt.Println("No schema changes detected")
			return nil
		}
		fmt.Printf("Generated %s\n", filename)
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending migrations to a tenant namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		tenant, _ := cmd.Flags().GetString("tenant")

		ctx := cmd.Context()
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		runner := migrate.NewRunner(pool, cfg.MigrationsDir)
		if err := runner.EnsureNamespace(ctx, tenant); err != nil {
			return err
		}
		fmt.Printf("Namespace %s is up to date\n", db.NormalizeNamespace(tenant))
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a tenant: migrate its namespace and record it in public.customers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		tenant, _ := cmd.Flags().GetString("tenant")
		ns := db.NormalizeNamespace(tenant)

		ctx := cmd.Context()
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		runner := migrate.NewRunner(pool, cfg.MigrationsDir)
		if err := runner.EnsureNamespace(ctx, ns); err != nil {
			return err
		}

		handle, err := pool.Acquire(ctx, ns)
		if err != nil {
			return err
		}
		defer handle.Release(ctx)

		ctx = appctx.With(ctx, &appctx.Frame{Tenant: ns, Handle: handle})
		record, created, err := orm.FirstOrCreate(ctx, model.Customers, map[string]any{"name": ns})
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Registered tenant %s (id %v)\n", ns, record.ID())
		} else {
			fmt.Printf("Tenant %s already registered (id %v)\n", ns, record.ID())
		}
		return nil
	},
}

func tenantFlag(cmd *cobra.Command) {
	cmd.Flags().String("tenant", "", "Tenant namespace")
	_ = cmd.MarkFlagRequired("tenant")
}

func init() {
	tenantFlag(applyCmd)
	tenantFlag(registerCmd)
}
