package cmd

import (
	"github.com/driftsync/driftsync/internal/cmdrunner"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/destination"
	"github.com/driftsync/driftsync/internal/git"
	"github.com/driftsync/driftsync/internal/origin"
)

// workflowDeps bundles everything a command needs once the config file and
// workflow name have been resolved from its arguments.
type workflowDeps struct {
	name        string
	workflow    config.Workflow
	origin      *origin.GitOrigin
	destination *destination.GitDestination
	runner      *cmdrunner.Runner
}

func loadWorkflow(configPath, name string) (*workflowDeps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	w, err := cfg.Workflow(name)
	if err != nil {
		return nil, err
	}

	o, err := origin.NewGitOrigin(w.Origin.URL)
	if err != nil {
		return nil, err
	}
	d, err := destination.NewGitDestination(w.Destination.URL, w.Files,
		git.Author{Name: w.Author.Name, Email: w.Author.Email}, w.Label)
	if err != nil {
		return nil, err
	}

	return &workflowDeps{
		name:        name,
		workflow:    w,
		origin:      o,
		destination: d,
		runner:      cmdrunner.New(cmdrunner.WithTimeout(w.Timeout())),
	}, nil
}
