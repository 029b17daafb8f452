package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/akonadid/pkg/config"
	"github.com/cuemby/akonadid/pkg/janitor"
	"github.com/cuemby/akonadid/pkg/payload"
	"github.com/cuemby/akonadid/pkg/storage"
)

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Reclaim space freed by deleted items and parts",
	RunE:  runVacuum,
}

func runVacuum(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	layout := config.NewDataLayout(dataDir)

	ctx := context.Background()
	store, err := storage.Open(ctx, layout.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	payloadStore, err := payload.NewStore(layout.FileDBDataDir())
	if err != nil {
		return fmt.Errorf("open payload store: %w", err)
	}

	j := janitor.New(store, payloadStore, 0, nil)
	if err := j.Vacuum(ctx); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	fmt.Println("vacuum complete")
	return nil
}
