package cmd

import (
	"context"

	"github.com/driftsync/driftsync/internal/model"
	"github.com/driftsync/driftsync/internal/model/flag"
	"github.com/driftsync/driftsync/internal/workflow"
)

type migrateFlags struct {
	DebugMergeFilter string `json:"debug-merge-filter"`
}

var migrateCmd = &model.ExecutableCommand[migrateFlags]{
	Usage: "migrate <config> <workflow> [ref]",
	Short: "Import origin changes, merging destination-only edits back in",
	Long: `Migrate imports the origin at the given ref (or the workflow's configured ref),
three-way merges edits made directly on the destination since the last sync,
regenerates the patch state, and publishes the result tagged with the sync
label. Merge conflicts leave markers in the published files and are reported
as warnings.`,
	MinArgs: 2,
	MaxArgs: 3,
	Flags: []flag.Flag{
		flag.StringFlag{
			Name:        "debug-merge-filter",
			Description: "log full merge tool invocations for paths matching this pattern",
		},
	},
	Run: runMigrate,
}

func runMigrate(ctx context.Context, args []string, flags migrateFlags) error {
	deps, err := loadWorkflow(args[0], args[1])
	if err != nil {
		return err
	}

	ref := ""
	if len(args) > 2 {
		ref = args[2]
	}

	return workflow.Run(ctx, workflow.Options{
		WorkflowName:     deps.name,
		Workflow:         deps.workflow,
		Origin:           deps.origin,
		Destination:      deps.destination,
		Runner:           deps.runner,
		Ref:              ref,
		DebugMergeFilter: flags.DebugMergeFilter,
	})
}
