package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/driftsync/driftsync/internal/history"
	"github.com/driftsync/driftsync/internal/log"
	"github.com/driftsync/driftsync/internal/model"
)

type baselineFlags struct{}

var baselineCmd = &model.ExecutableCommand[baselineFlags]{
	Usage: "baseline <config> <workflow> [ref]",
	Short: "Show the last origin revision already reflected in the destination",
	Long: `Baseline walks destination history below the given ref (HEAD when omitted)
and prints the most recent change carrying the workflow's sync label: the
three-way merge ancestor a migrate run would use.`,
	MinArgs: 2,
	MaxArgs: 3,
	Run:     runBaseline,
}

func runBaseline(ctx context.Context, args []string, _ baselineFlags) error {
	deps, err := loadWorkflow(args[0], args[1])
	if err != nil {
		return err
	}

	ref := "HEAD"
	if len(args) > 2 {
		ref = args[2]
	}
	start, err := deps.destination.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	traverser := history.NewTraverser(deps.destination, deps.workflow.Files)
	resolver := history.NewResolver(traverser, deps.workflow.PageSize)

	baseline, found, err := resolver.Resolve(ctx, start, deps.workflow.Label)
	if err != nil {
		return err
	}

	logger := log.From(ctx)
	if !found {
		logger.Warn("no baseline found",
			zap.String("label", deps.workflow.Label), zap.String("start", start.ID))
		logger.PrintfStyled(log.DimmedItalic,
			"run `driftsync migrate` to publish the first change carrying the %s label", deps.workflow.Label)
		return nil
	}
	logger.Info("baseline resolved",
		zap.String("origin_revision", baseline.LabelValue),
		zap.String("destination_revision", baseline.Revision.ID))
	return nil
}
