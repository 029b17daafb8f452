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

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the consistency sweep once and print any findings",
	Long: `Opens the database directly — the server does not need to be running
— and runs the same sweep the background janitor performs, printing
each finding to stdout instead of the log.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
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

	findings := 0
	j := janitor.New(store, payloadStore, 0, func(text string) {
		findings++
		fmt.Println(text)
	})

	if err := j.Check(ctx); err != nil {
		return fmt.Errorf("check: %w", err)
	}

	if findings == 0 {
		fmt.Println("no inconsistencies found")
	} else {
		fmt.Printf("%d finding(s) reported\n", findings)
	}
	return nil
}
