package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/stormdbg/internal/config"
	"github.com/dshills/stormdbg/internal/debug"
	"github.com/dshills/stormdbg/internal/debug/location"
	"github.com/dshills/stormdbg/internal/debug/store"
)

var (
	bpKind   string
	bpFormat string
	bpOutput string
)

var breakpointsCmd = &cobra.Command{
	Use:     "breakpoints",
	Aliases: []string{"bp"},
	Short:   "Manage saved breakpoints",
	Long: `Manage the breakpoints kept in the configured store. Saved breakpoints
are installed automatically the next time a session of the same backend
kind attaches.`,
}

var bpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved breakpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOffline(bpKind, nil, func(kind string, s *debug.Session) error {
			return printBreakpoints(cmd.OutOrStdout(), s.Breakpoints())
		})
	},
}

var bpKindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List backend kinds with saved breakpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.Breakpoints.Store, cfg.Breakpoints.Path)
		if err != nil {
			return err
		}
		if st == nil {
			return errors.New("breakpoints.store is none: nothing to list")
		}
		defer st.Close()
		return printKinds(cmd.OutOrStdout(), st)
	},
}

var bpAddCmd = &cobra.Command{
	Use:   "add <file:line>...",
	Short: "Add breakpoints",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOffline(bpKind, breakpointFiles(args), func(kind string, s *debug.Session) error {
			for _, arg := range args {
				loc, err := parseLocation(arg)
				if err != nil {
					return err
				}
				if _, err := s.AddBreakpoint(cmd.Context(), loc); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var bpRemoveCmd = &cobra.Command{
	Use:     "remove <file:line>...",
	Aliases: []string{"rm"},
	Short:   "Remove breakpoints",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOffline(bpKind, breakpointFiles(args), func(kind string, s *debug.Session) error {
			for _, arg := range args {
				loc, err := parseLocation(arg)
				if err != nil {
					return err
				}
				if err := s.RemoveBreakpoint(cmd.Context(), loc); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var bpExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export saved breakpoints as yaml, json or toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOffline(bpKind, nil, func(kind string, s *debug.Session) error {
			data, err := encodeExport(bpFormat, newExport(kind, s.Breakpoints()))
			if err != nil {
				return err
			}
			if bpOutput == "" || bpOutput == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(bpOutput, data, 0o644)
		})
	},
}

var bpImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import breakpoints from a yaml, json or toml export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		format := bpFormat
		if !cmd.Flags().Changed("format") {
			format = formatFromExt(args[0])
		}
		file, err := decodeExport(format, data)
		if err != nil {
			return err
		}
		kind := bpKind
		if kind == "" {
			kind = file.Kind
		}
		return withOffline(kind, nil, func(kind string, s *debug.Session) error {
			for _, bp := range file.Breakpoints {
				loc := location.Editor{Path: bp.Path, Line: bp.Line}
				if _, err := s.AddBreakpoint(cmd.Context(), loc); err != nil {
					return err
				}
				if !bp.Enabled {
					if _, err := s.SetBreakpointEnabled(cmd.Context(), loc, false); err != nil {
						return err
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d breakpoints for %s\n", len(file.Breakpoints), kind)
			return nil
		})
	},
}

func init() {
	breakpointsCmd.PersistentFlags().StringVar(&bpKind, "kind", "", kindUsage()+"; default: backend.kind or detected")
	bpExportCmd.Flags().StringVarP(&bpFormat, "format", "f", "yaml", "output format: yaml, json or toml")
	bpExportCmd.Flags().StringVarP(&bpOutput, "output", "o", "", "output file (default: stdout)")
	bpImportCmd.Flags().StringVarP(&bpFormat, "format", "f", "yaml", "input format (default: from file extension)")

	breakpointsCmd.AddCommand(bpListCmd, bpKindsCmd, bpAddCmd, bpRemoveCmd, bpExportCmd, bpImportCmd)
}

// withOffline runs fn on a detached session over the configured store.
func withOffline(kindFlag string, files []string, fn func(kind string, s *debug.Session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Breakpoints.Store == config.StoreNone {
		return errors.New("breakpoints.store is none: nothing to manage")
	}
	kind, err := resolveKind(kindFlag, cfg, files)
	if err != nil {
		return err
	}
	rt, err := newRuntime(kind, cfg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(kind, rt.Session)
}

// printKinds lists each stored kind with its breakpoint count.
func printKinds(w io.Writer, st store.Store) error {
	kinds, err := st.Kinds()
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		_, err := fmt.Fprintln(w, "no saved breakpoints")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tBREAKPOINTS")
	for _, kind := range kinds {
		saved, err := st.Load(kind)
		if err != nil {
			return fmt.Errorf("load %s: %w", kind, err)
		}
		fmt.Fprintf(tw, "%s\t%d\n", kind, len(saved))
	}
	return tw.Flush()
}

func printBreakpoints(w io.Writer, list []debug.Breakpoint) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no breakpoints")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tTARGET\tSTATE\tHITS")
	for _, bp := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", bp.Location, bp.Target, breakpointState(bp), bp.HitCount)
	}
	return tw.Flush()
}

func breakpointState(bp debug.Breakpoint) string {
	var parts []string
	switch {
	case !bp.Enabled:
		parts = append(parts, "disabled")
	case bp.Confirmed:
		parts = append(parts, "installed")
	default:
		parts = append(parts, "pending")
	}
	if bp.Synthetic {
		parts = append(parts, "synthetic")
	}
	if !bp.Resolved {
		parts = append(parts, "unresolved")
	}
	if bp.SyncErr != nil {
		parts = append(parts, "error: "+bp.SyncErr.Error())
	}
	return strings.Join(parts, ", ")
}

// exportFile is the portable breakpoint list.
type exportFile struct {
	Kind        string             `json:"kind" yaml:"kind" toml:"kind"`
	Breakpoints []exportBreakpoint `json:"breakpoints" yaml:"breakpoints" toml:"breakpoint"`
}

type exportBreakpoint struct {
	Path    string `json:"path" yaml:"path" toml:"path"`
	Line    int    `json:"line" yaml:"line" toml:"line"`
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
}

func newExport(kind string, list []debug.Breakpoint) exportFile {
	file := exportFile{Kind: kind, Breakpoints: []exportBreakpoint{}}
	for _, bp := range list {
		if bp.Synthetic {
			continue
		}
		file.Breakpoints = append(file.Breakpoints, exportBreakpoint{
			Path:    bp.Location.Path,
			Line:    bp.Location.Line,
			Enabled: bp.Enabled,
		})
	}
	return file
}

func encodeExport(format string, file exportFile) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(file); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "json":
		data, err := json.MarshalIndent(file, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "toml":
		return toml.Marshal(file)
	}
	return nil, fmt.Errorf("unknown format %q: want yaml, json or toml", format)
}

func decodeExport(format string, data []byte) (exportFile, error) {
	var file exportFile
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &file)
	case "json":
		err = json.Unmarshal(data, &file)
	case "toml":
		err = toml.Unmarshal(data, &file)
	default:
		return file, fmt.Errorf("unknown format %q: want yaml, json or toml", format)
	}
	if err != nil {
		return file, fmt.Errorf("decode %s: %w", format, err)
	}
	for i, bp := range file.Breakpoints {
		if bp.Path == "" || bp.Line <= 0 {
			return file, fmt.Errorf("breakpoint %d: path and positive line are required", i)
		}
	}
	return file, nil
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	}
	return "yaml"
}
