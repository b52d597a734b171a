package cmd

import (
	"context"

	"github.com/driftsync/driftsync/internal/model"
	"github.com/driftsync/driftsync/internal/model/flag"
	"github.com/driftsync/driftsync/internal/regenerate"
)

type regenerateFlags struct {
	RegenBaseline       string `json:"regen-baseline"`
	RegenTarget         string `json:"regen-target"`
	RegenImportBaseline bool   `json:"regen-import-baseline"`
}

var regenerateCmd = &model.ExecutableCommand[regenerateFlags]{
	Usage: "regenerate <config> <workflow> [source_ref]",
	Short: "Rebuild patch state after manual destination edits",
	Long: `Regenerate reconstructs the pristine pre-edit tree of a workflow's destination,
diffs it against the current target tree, and publishes fresh autopatch files
or a fresh consistency file. Merge conflicts are reported as warnings and do
not fail the run.`,
	MinArgs: 2,
	MaxArgs: 3,
	Flags: []flag.Flag{
		flag.StringFlag{
			Name:        "regen-baseline",
			Description: "destination ref holding the last published patch state",
		},
		flag.StringFlag{
			Name:        "regen-target",
			Description: "destination ref holding the manually edited tree",
		},
		flag.BooleanFlag{
			Name:        "regen-import-baseline",
			Description: "rebuild the pristine tree by re-importing the origin instead of reverse-applying patches",
		},
	},
	Run: runRegenerate,
}

func runRegenerate(ctx context.Context, args []string, flags regenerateFlags) error {
	deps, err := loadWorkflow(args[0], args[1])
	if err != nil {
		return err
	}

	sourceRef := ""
	if len(args) > 2 {
		sourceRef = args[2]
	}

	return regenerate.Run(ctx, regenerate.Options{
		WorkflowName:   deps.name,
		Workflow:       deps.workflow,
		Origin:         deps.origin,
		Destination:    deps.destination,
		Runner:         deps.runner,
		SourceRef:      sourceRef,
		Baseline:       flags.RegenBaseline,
		Target:         flags.RegenTarget,
		ImportBaseline: flags.RegenImportBaseline,
	})
}
