package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/usecase"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair divergence left by interrupted uploads, renames and deletes",
	Long: `reconcile reads the intent journal and brings the object store and the
catalog back in line for every operation that did not complete. Run it while
the server is stopped. Results are printed as JSON; the command fails when any
intent could not be reconciled.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configFile)
	if err != nil {
		return err
	}
	defer a.Close()

	reconciler := usecase.NewReconcileUseCase(a.catalog, a.store, a.journal, a.logger.Logger)
	results, err := reconciler.Reconcile(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Outcome == entities.OutcomeFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d intents could not be reconciled", failed, len(results))
	}
	return nil
}
