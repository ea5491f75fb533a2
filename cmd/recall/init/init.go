// Package initcmder provides the init command for initializing a local
// .recall directory and, optionally, projects inside its store.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/store"
)

const initLongDesc string = `Initialize a new .recall/ directory in the current working directory.

Creates a local .recall/ directory that takes precedence over the default
~/.recall/ directory, writes a config.toml, and creates the store layout
(manifest, index and schemas) for every project named on the command line.
Running init again is safe: existing files are left alone.

Presets configure the semantic scorer for a vector backend:
  local      sqlite-vec database inside .recall/
  qdrant     qdrant on localhost:6334
  pgvector   postgres with the pgvector extension
  chroma     chroma on localhost:8000

A preset may also be an http(s) URL pointing at a config.toml.

Examples:
  recall init
  recall init web data
  recall init --preset local
  recall init --preset https://example.com/recall/config.toml`

const initShortDesc string = "Initialize a local .recall/ directory"

type initCommander struct {
	preset string
	out    io.Writer
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init [project...]",
		Short: initShortDesc,
		Long:  initLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context(), args)
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Vector backend preset name or URL of a config.toml")

	return cmd
}

func (c *initCommander) run(ctx context.Context, projects []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	dir := filepath.Join(cwd, dotdir.DirName)

	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		fmt.Fprintf(c.out, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .recall directory: %w", err)
		}
		fmt.Fprintf(c.out, "Initialized .recall directory: %s\n", dir)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := c.writeConfig(ctx, cfger); err != nil {
		return err
	}

	if len(projects) == 0 {
		return nil
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfger.StoreRoot(cfg), store.Options{Logger: logger.Nop()})
	if err != nil {
		return err
	}
	defer s.Close()

	for _, project := range projects {
		m, err := s.InitProject(project)
		if err != nil {
			return fmt.Errorf("initializing project %s: %w", project, err)
		}
		fmt.Fprintf(c.out, "  %s project %s (schema v%d)\n",
			cliui.SuccessMark, cliui.IDStyle.Render(m.Project), m.SchemaVersion)
	}
	return nil
}

// writeConfig writes config.toml from the preset, or the defaults when no
// config exists yet. An existing config is only replaced by an explicit preset.
func (c *initCommander) writeConfig(ctx context.Context, cfger *config.Configer) error {
	_, statErr := os.Stat(cfger.GetTarget())
	exists := statErr == nil

	var (
		cfg *config.Config
		err error
	)
	switch {
	case c.preset == "" && exists:
		return nil
	case c.preset == "":
		cfg = config.NewDefaultConfig()
	case isURL(c.preset):
		cfg, err = fetchConfig(ctx, c.preset)
	default:
		cfg, err = config.PresetConfig(c.preset)
	}
	if err != nil {
		return err
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(c.out, "Wrote %s\n", cfger.GetTarget())
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// fetchConfig downloads and validates a remote config.toml.
func fetchConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building preset request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching preset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching preset: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading preset: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("fetching preset: empty config")
	}
	return config.ParseConfigTOML(data)
}
