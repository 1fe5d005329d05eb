package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionJSON bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print build information as JSON")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the askdb version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := readBuildInfo()
		if versionJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	},
}

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	BuiltAt   string `json:"built_at,omitempty"`
	GoVersion string `json:"go_version"`
}

func readBuildInfo() buildInfo {
	out := buildInfo{Version: "dev", GoVersion: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		out.Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value[:min(len(s.Value), 7)]
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		case "vcs.time":
			out.BuiltAt = s.Value
		}
	}
	return out
}

// String renders "v1.2.0 (abc1234 modified) built 2025-01-01T00:00:00Z".
func (b buildInfo) String() string {
	s := b.Version
	if b.Commit != "" {
		s += " (" + b.Commit
		if b.Dirty {
			s += " modified"
		}
		s += ")"
	}
	if b.BuiltAt != "" {
		s += " built " + b.BuiltAt
	}
	return s
}
