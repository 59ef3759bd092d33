package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/tuyable-bridge/internal/catalog"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/database"
)

var (
	catalogCategory string
	catalogJSON     bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the supported product catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printCatalog(cmd.OutOrStdout(), catalogCategory, catalogJSON)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		printVersion(cmd.OutOrStdout())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Show or change the database schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return migrateStatus(cmd.Context(), cmd.OutOrStdout(), getConfigPath())
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return migrateUp(cmd.Context(), cmd.OutOrStdout(), getConfigPath())
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return migrateDown(cmd.Context(), cmd.OutOrStdout(), getConfigPath())
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	catalogCmd.Flags().StringVar(&catalogCategory, "category", "", "Only list one category (e.g. szjqr)")
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "Output as JSON")
}

// printCatalog writes the catalog as a table or JSON.
func printCatalog(w io.Writer, category string, asJSON bool) error {
	var products []catalog.Product
	if category != "" {
		products = catalog.Products(category)
		if products == nil {
			return fmt.Errorf("unknown category %q", category)
		}
	} else {
		products = catalog.All()
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(products)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tPRODUCT ID\tNAME\tMANUFACTURER")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Category, p.ProductID, p.Name, p.Manufacturer)
	}
	return tw.Flush()
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tuyable-bridge %s\n", version)
	fmt.Fprintf(w, "  commit:  %s\n", commit)
	fmt.Fprintf(w, "  built:   %s\n", date)
	fmt.Fprintf(w, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// openDatabase opens the database named in the config file without
// touching MQTT or the bridge.
func openDatabase(ctx context.Context, configPath string) (*database.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func migrateStatus(ctx context.Context, w io.Writer, configPath string) error {
	db, err := openDatabase(ctx, configPath)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-only command

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATUS\tAPPLIED AT")
	for _, r := range applied {
		fmt.Fprintf(tw, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\tpending\t-\n", m.Version)
	}
	return tw.Flush()
}

func migrateUp(ctx context.Context, w io.Writer, configPath string) error {
	db, err := openDatabase(ctx, configPath)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // closed after the migrations commit

	_, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	fmt.Fprintf(w, "applied %d migration(s)\n", len(pending))
	return nil
}

func migrateDown(ctx context.Context, w io.Writer, configPath string) error {
	db, err := openDatabase(ctx, configPath)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // closed after the rollback commits

	applied, _, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(w, "nothing to roll back")
		return nil
	}
	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	fmt.Fprintf(w, "rolled back %s\n", applied[len(applied)-1].Version)
	return nil
}
