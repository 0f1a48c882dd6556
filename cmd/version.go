package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/lupppig/bita/internal/archive"
	"github.com/lupppig/bita/internal/chunker"
	"github.com/lupppig/bita/internal/compress"
	"github.com/lupppig/bita/internal/hashsum"
	"github.com/lupppig/bita/internal/logger"
	"github.com/lupppig/bita/internal/rolling"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bita version and supported archive features",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "bita %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		fmt.Fprintf(w, "Archive format:   %d\n", archive.Version)
		fmt.Fprintf(w, "Rolling hashes:   %s\n", strings.Join(rollingNames(), ", "))
		fmt.Fprintf(w, "Chunk hashes:     %s\n", strings.Join(hashNames(), ", "))
		fmt.Fprintf(w, "Compression:      %s\n", strings.Join(codecNames(), ", "))
		fmt.Fprintf(w, "Default chunker:  %s\n", chunker.DefaultConfig())
		fmt.Fprintf(w, "Default codec:    %s\n", compress.DefaultCodec)

		logger.FromContext(cmd.Context()).Debug("build",
			"go_version", runtime.Version(),
			"os", runtime.GOOS,
			"arch", runtime.GOARCH,
		)
	},
}

func rollingNames() []string {
	var out []string
	for _, a := range []rolling.Algorithm{rolling.AlgoBuzHash, rolling.AlgoRollSum, rolling.AlgoGear} {
		out = append(out, a.String())
	}
	return out
}

func hashNames() []string {
	var out []string
	for f := hashsum.Blake2b; f.Valid(); f++ {
		out = append(out, f.String())
	}
	return out
}

func codecNames() []string {
	var out []string
	for k := compress.KindNone; k.Valid(); k++ {
		out = append(out, k.String())
	}
	return out
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
