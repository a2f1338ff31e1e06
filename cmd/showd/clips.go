package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/arcaluminis-show/internal/registry"
)

func newClipsCommand(opts *options) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "clips",
		Short: "Inspect and manage the clip catalog",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite clip store (defaults to registry.path from --config)")

	storePath := func() (string, error) {
		if dbPath != "" {
			return dbPath, nil
		}
		cfg, err := opts.load()
		if err != nil {
			return "", err
		}
		if cfg.Registry.Path == "" {
			return "", fmt.Errorf("no clip store: pass --db or set registry.path")
		}
		return cfg.Registry.Path, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clips",
		RunE: func(cmd *cobra.Command, args []string) error {
			clips, err := listClips(cmd, opts, dbPath)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(clips))
			for _, c := range clips {
				sources := make([]string, len(c.Layers))
				for i, l := range c.Layers {
					sources[i] = l.SourceType
				}
				rows = append(rows, []string{c.ID, c.Name, strconv.Itoa(len(c.Layers)), strings.Join(sources, ", "), strconv.Itoa(len(c.Effects))})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "NAME", "LAYERS", "SOURCES", "EFFECTS"}, rows, 2, 4))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import clips from a YAML, JSON or TOML file into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := storePath()
			if err != nil {
				return err
			}
			clips, err := readClipFile(args[0])
			if err != nil {
				return err
			}
			st, err := registry.Open(path)
			if err != nil {
				return err
			}
			defer st.Close()
			for _, c := range clips {
				id, err := st.Put(cmd.Context(), c)
				if err != nil {
					return fmt.Errorf("import %q: %w", c.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "snapshot <player>",
		Short: "Print the newest saved live-parameter snapshot of a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := storePath()
			if err != nil {
				return err
			}
			st, err := registry.Open(path)
			if err != nil {
				return err
			}
			defer st.Close()
			snap, err := st.LatestSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	})
	return cmd
}

func listClips(cmd *cobra.Command, opts *options, dbPath string) ([]registry.Clip, error) {
	if dbPath != "" {
		st, err := registry.Open(dbPath)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.List(cmd.Context())
	}
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	if cfg.Registry.Path != "" {
		return listClips(cmd, opts, cfg.Registry.Path)
	}
	mem, err := registry.NewMemory(cfg.Clips...)
	if err != nil {
		return nil, err
	}
	return mem.List(cmd.Context())
}

type clipFile struct {
	Clips []registry.Clip `json:"clips" yaml:"clips" toml:"clips"`
}

// readClipFile decodes {clips: [...]} by extension; YAML also reads JSON.
func readClipFile(path string) ([]registry.Clip, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f clipFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(b, &f)
	case ".json":
		err = json.Unmarshal(b, &f)
	default:
		err = yaml.Unmarshal(b, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(f.Clips) == 0 {
		return nil, fmt.Errorf("%s: no clips", path)
	}
	return f.Clips, nil
}
