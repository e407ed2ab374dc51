package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var versionExtended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		name := "gopathways"
		if id := GetAppIdentity(); id != nil && id.BinaryName != "" {
			name = id.BinaryName
		}
		fmt.Printf("%s %s\n", name, versionInfo.Version)
		if !versionExtended {
			return
		}
		v := crucible.GetVersion()
		fmt.Printf("Commit:     %s\n", versionInfo.Commit)
		fmt.Printf("Built:      %s\n", versionInfo.BuildDate)
		fmt.Printf("Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Printf("Gofulmen:   %s\n", v.Gofulmen)
		fmt.Printf("Crucible:   %s\n", v.Crucible)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionExtended, "extended", false, "Include build and dependency details")
}
