package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/nfrund/classroom/cmd/classroom-chat/cmd.version=1.2.0 -X github.com/nfrund/classroom/cmd/classroom-chat/cmd.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = ""
)

// buildVersion falls back to the module version and VCS revision recorded by
// the Go toolchain when the linker flags were not given.
func buildVersion(info *debug.BuildInfo, ok bool) (string, string) {
	v, c := version, commit
	if !ok || info == nil {
		return v, c
	}
	if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	if c == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				c = s.Value[:7]
			}
		}
	}
	return v, c
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the classroom-chat build",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		v, c := buildVersion(debug.ReadBuildInfo())
		out := cmd.OutOrStdout()
		if c == "" {
			fmt.Fprintf(out, "classroom-chat %s (%s)\n", v, runtime.Version())
			return
		}
		fmt.Fprintf(out, "classroom-chat %s, commit %s (%s)\n", v, c, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
