package model

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/fatih/structs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/driftsync/driftsync/internal/model/flag"
)

type Command interface {
	Init() (*cobra.Command, error)
}

type CommandGroup struct {
	Usage, Short, Long string
	Aliases            []string
	Commands           []Command
}

func (c CommandGroup) Init() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:     c.Usage,
		Short:   c.Short,
		Long:    c.Long,
		Aliases: c.Aliases,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	for _, subcommand := range c.Commands {
		subcmd, err := subcommand.Init()
		if err != nil {
			return nil, err
		}
		cmd.AddCommand(subcmd)
	}

	return cmd, nil
}

// Flags that cobra adds on its own and that never appear in a flags struct.
var flagsToIgnore = []string{"help", "version", "logLevel"}

// ExecutableCommand is a runnable "leaf" command that can be executed directly and has no subcommands.
// F is a struct type that represents the flags for the command. The json tags on the struct fields
// are used to map to the command line flags.
type ExecutableCommand[F interface{}] struct {
	Usage, Short, Long string
	Flags              []flag.Flag
	MinArgs, MaxArgs   int
	PreRun             func(cmd *cobra.Command, flags *F) error
	Run                func(ctx context.Context, args []string, flags F) error
	Hidden             bool
}

func (c ExecutableCommand[F]) Init() (*cobra.Command, error) {
	preRun := func(cmd *cobra.Command, args []string) error {
		flags, err := c.GetFlagValues(cmd)
		if err != nil {
			return err
		}

		if c.PreRun != nil {
			if err := c.PreRun(cmd, flags); err != nil {
				return err
			}
		}

		return nil
	}

	run := func(cmd *cobra.Command, args []string) error {
		flags, err := c.GetFlagValues(cmd)
		if err != nil {
			return err
		}

		// Usage output is for parse errors, not execution errors.
		cmd.SilenceUsage = true

		return c.Run(cmd.Context(), args, *flags)
	}

	// Assert that the flags are valid
	if err := c.checkFlags(); err != nil {
		return nil, err
	}

	cmd := &cobra.Command{
		Use:     c.Usage,
		Short:   c.Short,
		Long:    c.Long,
		Args:    cobra.RangeArgs(c.MinArgs, c.MaxArgs),
		PreRunE: preRun,
		RunE:    run,
		Hidden:  c.Hidden,
	}

	for _, f := range c.Flags {
		if err := f.Init(cmd); err != nil {
			return nil, err
		}
	}

	return cmd, nil
}

func (c ExecutableCommand[F]) checkFlags() error {
	var f F
	fields := structs.Fields(f)

	tags := make([]string, len(fields))
	for i, field := range fields {
		tags[i] = field.Tag("json")
	}

	for _, f := range c.Flags {
		if !slices.Contains(tags, f.GetName()) {
			return fmt.Errorf("flag %s is missing from flags type for command %s", f.GetName(), c.Usage)
		}
	}

	return nil
}

func (c ExecutableCommand[F]) GetFlagValues(cmd *cobra.Command) (*F, error) {
	var flagValues F

	findFlagDef := func(name string) flag.Flag {
		if slices.Contains(flagsToIgnore, name) {
			return nil
		}
		for _, f := range c.Flags {
			if f.GetName() == name {
				return f
			}
		}
		return nil
	}

	var parseErr error
	jsonFlags := make(map[string]interface{})
	cmd.Flags().VisitAll(func(pf *pflag.Flag) {
		f := findFlagDef(pf.Name)
		if f == nil {
			return
		}

		v, err := f.ParseValue(pf.Value.String())
		if err != nil {
			parseErr = fmt.Errorf("invalid value for --%s: %w", pf.Name, err)
			return
		}
		jsonFlags[pf.Name] = v
	})
	if parseErr != nil {
		return nil, parseErr
	}

	jsonBytes, err := json.Marshal(jsonFlags)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(jsonBytes, &flagValues); err != nil {
		return nil, err
	}

	return &flagValues, nil
}
