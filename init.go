package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/deptree/internal/config"
)

// newInitCmd implements `deptree init`, which writes a default .deptree.yaml
// or adds missing settings to an existing one without touching the rest.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init [flags] [path]",
		Short: "Write a default .deptree.yaml",
		Long: `Write the default deptree configuration to path (default ./.deptree.yaml).

If the file exists, settings it lacks are added with their default values;
settings it already has, and any comments, are kept. Creates the file if it
does not exist.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := config.DefaultConfigFile + "." + config.DefaultConfigType
			if len(args) > 0 {
				path = args[0]
			}

			existing, err := os.ReadFile(path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			updated, err := applyDefaults(existing, config.Default())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			if dryRun {
				_, err := stdout.Write(updated)
				return err
			}

			if err := os.WriteFile(path, updated, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			_, _ = fmt.Fprintf(stderr, "wrote deptree config to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

// applyDefaults adds every setting of defaults that content lacks. It is a
// pure function for easy testing.
func applyDefaults(content []byte, defaults *config.Config) ([]byte, error) {
	var want yaml.Node
	if err := want.Encode(defaults); err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(content)) > 0 {
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("parsing existing config: %w", err)
		}
	}

	out := &doc
	switch {
	case doc.Kind == 0:
		out = &want
	case doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 && doc.Content[0].Kind == yaml.MappingNode:
		mergeMissing(doc.Content[0], &want)
	default:
		return nil, errors.New("existing config is not a mapping")
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mergeMissing appends the keys of src that dst lacks, recursing into
// mappings present in both.
func mergeMissing(dst, src *yaml.Node) {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]
		existing := mappingValue(dst, key.Value)
		switch {
		case existing == nil:
			dst.Content = append(dst.Content, key, val)
		case existing.Kind == yaml.MappingNode && val.Kind == yaml.MappingNode:
			mergeMissing(existing, val)
		}
	}
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
