package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"

	"collection-runner/internal/config"
	"collection-runner/internal/db"
	"collection-runner/internal/models"
	"collection-runner/internal/runner"
	"collection-runner/internal/store"
	"collection-runner/internal/substitute"
	"collection-runner/internal/transport"

	"github.com/spf13/cobra"
)

var (
	runProject     string
	runFolder      string
	runEnvironment string
	runStopOnError bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a folder (or the loose requests of a project)",
	Long: `Run every request of a folder in order. Without --folder the project's
requests outside any folder are run. Ctrl-C stops after the request in flight.

Examples:
  runner run --project 7c1e... --folder 0a9b...
  runner run --project 7c1e... --env production --stop-on-error`,
	RunE: runCommand,
}

func init() {
	runCmd.Flags().StringVar(&runProject, "project", "", "project id (required)")
	runCmd.Flags().StringVar(&runFolder, "folder", "", "folder id")
	runCmd.Flags().StringVar(&runEnvironment, "env", string(models.EnvDev), "environment: dev or production")
	runCmd.Flags().BoolVar(&runStopOnError, "stop-on-error", false, "stop at the first failed request")
	_ = runCmd.MarkFlagRequired("project")
}

func openStore() (*config.Config, *sql.DB, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.SetupLogging(); err != nil {
		return nil, nil, nil, err
	}
	database, err := db.NewConnection(cfg.DatabaseURL())
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, database, store.New(database), nil
}

func runCommand(cmd *cobra.Command, args []string) error {
	env := models.EnvironmentName(runEnvironment)
	if !env.Valid() {
		return fmt.Errorf("invalid environment %q (expected dev or production)", runEnvironment)
	}

	cfg, database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	requests, label, err := collectRequests(ctx, st, runProject, runFolder)
	if err != nil {
		return err
	}
	vars, err := st.GetEnvironment(ctx, runProject, env)
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	p := newPrinter(cmd.OutOrStdout())
	p.header(label, env, len(requests))

	ctrl := runner.NewController(transport.FromConfig(cfg), st,
		runner.WithSubstitutionMode(substitute.Mode(cfg.SubstitutionMode)),
		runner.WithObserver(p.observe),
	)
	snap, err := ctrl.Run(ctx, runner.Options{
		Requests:    requests,
		Environment: env,
		Variables:   vars,
		StopOnError: runStopOnError,
	})
	if err != nil {
		return err
	}

	p.summary(snap)
	if snap.State == runner.StateAborted {
		return fmt.Errorf("run aborted")
	}
	if snap.Summary.Error > 0 {
		return fmt.Errorf("%d of %d requests failed", snap.Summary.Error, snap.Summary.Total)
	}
	return nil
}

func collectRequests(ctx context.Context, st *store.Store, projectID, folderID string) ([]models.Request, string, error) {
	project, err := st.GetProject(ctx, projectID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load project %s: %w", projectID, err)
	}
	if folderID == "" {
		return project.Requests, project.Name, nil
	}
	for _, folder := range project.Folders {
		if folder.ID == folderID {
			return folder.Requests, project.Name + " / " + folder.Name, nil
		}
	}
	return nil, "", fmt.Errorf("folder %s not found in project %s", folderID, project.Name)
}
