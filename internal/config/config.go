// Package config loads the sync configuration file: a set of named workflows,
// each binding an origin, a destination, and the patch state layout.
package config

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/driftsync/driftsync/internal/autopatch"
	"github.com/driftsync/driftsync/internal/glob"
)

const (
	DefaultLabel             = "GitOrigin-RevId"
	DefaultPageSize          = 200
	DefaultSubprocessTimeout = 2 * time.Minute
)

type Config struct {
	Workflows map[string]Workflow `yaml:"workflows"`
}

// Repo locates one side of a sync. URL is a local path or anything the
// backend can open; Ref is the default ref to sync from.
type Repo struct {
	URL string `yaml:"url"`
	Ref string `yaml:"ref"`
}

type Author struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Duration wraps time.Duration so config values read like "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

type Workflow struct {
	Origin      Repo `yaml:"origin"`
	Destination Repo `yaml:"destination"`

	// Label is the metadata key tying destination changes back to origin
	// revisions.
	Label string    `yaml:"label"`
	Files glob.Glob `yaml:"glob"`

	Autopatch           *autopatch.Config `yaml:"autopatch"`
	ConsistencyFilePath string            `yaml:"consistency_file_path"`

	PageSize          int      `yaml:"page_size"`
	Workers           int      `yaml:"workers"`
	DebugMergeFilter  string   `yaml:"debug_merge_filter"`
	SubprocessTimeout Duration `yaml:"subprocess_timeout"`
	Author            Author   `yaml:"author"`
}

func (w Workflow) Timeout() time.Duration {
	if w.SubprocessTimeout == 0 {
		return DefaultSubprocessTimeout
	}
	return time.Duration(w.SubprocessTimeout)
}

// Load reads the config file at path. viper handles locating and reading the
// file; the typed decode goes through yaml so the structs shared with the
// engine keep a single set of tags.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	raw, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, errors.Wrap(err, "normalizing config")
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if len(cfg.Workflows) == 0 {
		return nil, errors.Errorf("config %s defines no workflows", path)
	}

	for name, w := range cfg.Workflows {
		cfg.Workflows[name] = withDefaults(w)
	}
	return &cfg, nil
}

func withDefaults(w Workflow) Workflow {
	if w.Label == "" {
		w.Label = DefaultLabel
	}
	if w.PageSize <= 0 {
		w.PageSize = DefaultPageSize
	}
	if len(w.Files.Includes) == 0 {
		w.Files = glob.All()
	}
	if w.Author.Name == "" {
		w.Author = Author{Name: "driftsync", Email: "driftsync@localhost"}
	}
	return w
}

// Workflow returns the named workflow or a configuration error listing what
// the file actually defines.
func (c *Config) Workflow(name string) (Workflow, error) {
	w, ok := c.Workflows[name]
	if !ok {
		names := make([]string, 0, len(c.Workflows))
		for n := range c.Workflows {
			names = append(names, n)
		}
		sort.Strings(names)
		return Workflow{}, errors.Errorf("workflow %q not found, config defines %v", name, names)
	}
	return w, nil
}
