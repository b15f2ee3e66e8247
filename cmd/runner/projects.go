package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects with their folders",
	Args:  cobra.NoArgs,
	RunE:  projectsCommand,
}

func projectsCommand(cmd *cobra.Command, args []string) error {
	_, database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	projects, err := st.ExportProjects(cmd.Context())
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No projects")
		return nil
	}

	out := cmd.OutOrStdout()
	for _, p := range projects {
		fmt.Fprintf(out, "\n%s  %s (created %s)\n", p.ID, p.Name, time.UnixMilli(p.CreatedAt).Format(time.DateOnly))
		if len(p.Requests) > 0 {
			fmt.Fprintf(out, "  - (no folder): %d requests\n", len(p.Requests))
		}
		for _, f := range p.Folders {
			fmt.Fprintf(out, "  - %s  %s: %d requests\n", f.ID, f.Name, len(f.Requests))
		}
	}
	return nil
}
