package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/driftsync/driftsync/internal/log"
	"github.com/driftsync/driftsync/internal/model"
)

var rootCmd = &cobra.Command{
	Use:   "driftsync",
	Short: "driftsync keeps an origin and a destination repository in sync",
	Long: `driftsync incrementally synchronizes two independently evolving repositories,
tolerating manual edits made directly on the destination between syncs:
	- migrate: import new origin changes, three-way merging destination edits back in
	- regenerate: rebuild autopatch files or the consistency file after manual destination edits
	- baseline: show the last origin revision already reflected in the destination
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var l = log.New().WithLevel(log.LevelInfo)

func init() {
	cobra.EnableCommandSorting = false
}

func Init(version string) {
	rootCmd.PersistentFlags().String("logLevel", string(log.LevelInfo), fmt.Sprintf("the log level (available options: [%s])", strings.Join(log.Levels, ", ")))

	addCommand(rootCmd, migrateCmd)
	addCommand(rootCmd, regenerateCmd)
	addCommand(rootCmd, baselineCmd)
}

func addCommand(cmd *cobra.Command, command model.Command) {
	c, err := command.Init()
	if err != nil {
		l.Error("", zap.Error(err))
		os.Exit(1)
	}
	cmd.AddCommand(c)
}

func Execute(version string) {
	setupRootCmd(version)

	if err := rootCmd.Execute(); err != nil {
		l.Error("", zap.Error(err))
		os.Exit(1)
	}
}

func GetRootCommand() *cobra.Command {
	return rootCmd
}

func setupRootCmd(version string) {
	rootCmd.Version = version
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return setLogLevel(cmd)
	}

	Init(version)
}

func setLogLevel(cmd *cobra.Command) error {
	logLevel, err := cmd.Flags().GetString("logLevel")
	if err != nil {
		return err
	}
	if !slices.Contains(log.Levels, logLevel) {
		return fmt.Errorf("log level must be one of: %s", strings.Join(log.Levels, ", "))
	}

	l = l.WithLevel(log.Level(logLevel))
	ctx := log.With(cmd.Context(), l)
	cmd.SetContext(ctx)

	return nil
}
