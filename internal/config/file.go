package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/sphinxserve/internal/project"
)

// ErrFileExists is returned by WriteFile when the target already exists.
var ErrFileExists = errors.New("config file already exists")

// Marshal renders the serve settings of cfg as a commented YAML document
// suitable for a .sphinxserve.yaml file.
func Marshal(cfg *Config) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}

	add := func(key, comment string, value *yaml.Node) {
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key, HeadComment: comment},
			value,
		)
	}

	add("host", "HTTP listen address.", scalar(cfg.Host))
	add("port", "", intScalar(cfg.Port))
	add("output-dir", "Rendered output, relative to the source directory.", scalar(cfg.OutputDir))
	add("extensions", "Source suffixes that trigger a rebuild.", sequence(cfg.Extensions))
	add("builder", "Document compiler and extra arguments placed before the source and output paths.", scalar(cfg.Builder))
	add("builder-args", "", sequence(cfg.BuilderArgs))

	if cfg.MinBuilderVersion != "" {
		add("min-builder-version", "", scalar(cfg.MinBuilderVersion))
	}

	add("debounce", "Quiet period for file events; 0s rebuilds on every change.", durationScalar(cfg.Debounce))
	add("polling", "Use stat polling instead of native file notifications.", boolScalar(cfg.Polling))
	add("poll-interval", "", durationScalar(cfg.PollInterval))
	add("keep-going", "Keep serving the last good output when a rebuild fails.", boolScalar(cfg.KeepGoing))
	add("strip-font-hosts", "CSS @import rules referencing these hosts are removed.", sequence(cfg.StripFontHosts))
	add("shutdown-timeout", "", durationScalar(cfg.ShutdownTimeout))
	add("log-level", "Logging: debug, info, warn, error / text, json.", scalar(cfg.LogLevel))
	add("log-format", "", scalar(cfg.LogFormat))

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{doc}}); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteFile writes cfg to path. An existing file is kept unless force is set.
func WriteFile(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err := project.NewFileWriter(path).Write(data); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func intScalar(n int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(n)}
}

func boolScalar(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

func durationScalar(d time.Duration) *yaml.Node {
	return scalar(d.String())
}

func sequence(items []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	if len(items) == 0 {
		seq.Style = yaml.FlowStyle
	}

	for _, item := range items {
		seq.Content = append(seq.Content, scalar(item))
	}

	return seq
}
