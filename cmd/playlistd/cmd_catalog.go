/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/playlistd/internal/catalog"
	"github.com/friendsincode/playlistd/internal/db"
	"github.com/friendsincode/playlistd/internal/server"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the song catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a catalog file into the database",
	Long:  "Replace the database catalog with the songs from a .json/.yaml file or s3://bucket/key object",
	RunE:  runCatalogImport,
}

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the database catalog to a file or S3 object",
	RunE:  runCatalogExport,
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a catalog file without importing it",
	RunE:  runCatalogCheck,
}

var (
	catalogFile string
	catalogTo   string
)

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd, catalogExportCmd, catalogCheckCmd)

	catalogImportCmd.Flags().StringVar(&catalogFile, "file", "", "Catalog file or s3://bucket/key (required)")
	_ = catalogImportCmd.MarkFlagRequired("file")

	catalogExportCmd.Flags().StringVar(&catalogTo, "to", "", "Destination file or s3://bucket/key (required)")
	_ = catalogExportCmd.MarkFlagRequired("to")

	catalogCheckCmd.Flags().StringVar(&catalogFile, "file", "", "Catalog file or s3://bucket/key (defaults to PLAYLISTD_CATALOG_PATH)")
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if !cfg.DatabaseEnabled() {
		return fmt.Errorf("PLAYLISTD_DB_DSN must be set to import a catalog")
	}
	ctx := context.Background()

	songs, err := catalog.Load(ctx, catalogFile, server.S3Config(cfg))
	if err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := catalog.Import(ctx, database, songs); err != nil {
		return err
	}

	logger.Info().Str("file", catalogFile).Int("songs", len(songs)).Msg("catalog imported")
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d songs from %s.\n", len(songs), catalogFile)
	return nil
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if !cfg.DatabaseEnabled() {
		return fmt.Errorf("PLAYLISTD_DB_DSN must be set to export a catalog")
	}
	ctx := context.Background()

	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close(database)

	songs, err := catalog.LoadDB(ctx, database)
	if err != nil {
		return err
	}
	if err := catalog.Save(ctx, catalogTo, server.S3Config(cfg), songs); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d songs to %s.\n", len(songs), catalogTo)
	return nil
}

func runCatalogCheck(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	location := catalogFile
	if location == "" {
		location = cfg.CatalogPath
	}

	songs, err := catalog.Load(context.Background(), location, server.S3Config(cfg))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d songs, ids unique.\n", location, len(songs))
	return nil
}
