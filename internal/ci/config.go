package ci

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sshere/gitlab-ci/internal/errors"
)

// BuildSpec is one build to instantiate for a matching ref.
type BuildSpec struct {
	Name     string
	Commands string
	Tags     []string
	Deploy   bool
}

// Config is a parsed CI configuration document.
type Config struct {
	Jobs       []jobConfig       `yaml:"jobs"`
	DeployJobs []deployJobConfig `yaml:"deploy_jobs"`
}

type jobConfig struct {
	Name      string      `yaml:"name"`
	Commands  commandList `yaml:"commands"`
	Tags      []string    `yaml:"tags"`
	Branches  *refFilter  `yaml:"branches"`
	BuildTags bool        `yaml:"build_tags"`
}

type deployJobConfig struct {
	Name   string      `yaml:"name"`
	Script commandList `yaml:"script"`
	Tags   []string    `yaml:"tags"`
	Refs   []string    `yaml:"refs"`
}

// commandList accepts either a single string or a list of strings and
// joins them into one newline-separated script.
type commandList string

func (c *commandList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*c = commandList(s)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*c = commandList(strings.Join(list, "\n"))
		return nil
	}
	return fmt.Errorf("commands must be a string or a list of strings")
}

// refFilter accepts a boolean, a single pattern, or a list of patterns.
// A bare true matches every ref of the job's kind.
type refFilter struct {
	enabled  bool
	patterns []string
}

func (f *refFilter) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := value.Decode(&b); err == nil {
			f.enabled = b
			return nil
		}
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		f.enabled = true
		f.patterns = []string{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		f.enabled = true
		f.patterns = list
		return nil
	}
	return fmt.Errorf("branches must be a boolean or a list of patterns")
}

func (f *refFilter) matches(ref string) bool {
	if f == nil {
		// Jobs without an explicit filter run for every branch.
		return true
	}
	if !f.enabled {
		return false
	}
	if len(f.patterns) == 0 {
		return true
	}
	for _, p := range f.patterns {
		if matchRef(p, ref) {
			return true
		}
	}
	return false
}

// matchRef matches a ref against an exact name or a /regexp/ pattern.
func matchRef(pattern, ref string) bool {
	if len(pattern) > 1 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		re, err := regexp.Compile(pattern[1 : len(pattern)-1])
		if err != nil {
			return false
		}
		return re.MatchString(ref)
	}
	return pattern == ref
}

// ParseConfig parses a CI configuration document. Parse and validation
// failures are configuration errors, distinct from "no matching build".
func ParseConfig(text string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, errors.NewConfigError("failed to parse CI configuration", err)
	}

	for i, job := range cfg.Jobs {
		if strings.TrimSpace(job.Name) == "" {
			return nil, errors.NewConfigError(fmt.Sprintf("job %d has no name", i+1), nil)
		}
		if strings.TrimSpace(string(job.Commands)) == "" {
			return nil, errors.NewConfigError(fmt.Sprintf("job %q has no commands", job.Name), nil)
		}
	}
	for i, job := range cfg.DeployJobs {
		if strings.TrimSpace(job.Name) == "" {
			return nil, errors.NewConfigError(fmt.Sprintf("deploy job %d has no name", i+1), nil)
		}
		if strings.TrimSpace(string(job.Script)) == "" {
			return nil, errors.NewConfigError(fmt.Sprintf("deploy job %q has no script", job.Name), nil)
		}
	}

	return &cfg, nil
}

// BuildsForRef selects the ordinary build specs applicable to a ref.
func (c *Config) BuildsForRef(ref string, tag bool) []BuildSpec {
	var specs []BuildSpec
	for _, job := range c.Jobs {
		if tag {
			if !job.BuildTags {
				continue
			}
		} else if !job.Branches.matches(ref) {
			continue
		}
		specs = append(specs, BuildSpec{
			Name:     job.Name,
			Commands: string(job.Commands),
			Tags:     job.Tags,
		})
	}
	return specs
}

// DeployBuildsForRef selects deploy build specs whose explicit ref list
// matches. An empty ref list matches any ref.
func (c *Config) DeployBuildsForRef(ref string) []BuildSpec {
	var specs []BuildSpec
	for _, job := range c.DeployJobs {
		if !matchAnyRef(job.Refs, ref) {
			continue
		}
		specs = append(specs, BuildSpec{
			Name:     job.Name,
			Commands: string(job.Script),
			Tags:     job.Tags,
			Deploy:   true,
		})
	}
	return specs
}

func matchAnyRef(patterns []string, ref string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchRef(p, ref) {
			return true
		}
	}
	return false
}
