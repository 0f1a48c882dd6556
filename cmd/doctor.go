package cmd

import (
	"fmt"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lupppig/bita/internal/archive"
	"github.com/lupppig/bita/internal/config"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/logger"
	"github.com/lupppig/bita/internal/storage"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [ARCHIVE...]",
	Short: "Check that archives are reachable and readable",
	Long: `Open every archive named on the command line, or listed under "archives" in the
config file, and report latency, size and whether its header and dictionary parse.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l := logger.FromContext(ctx)
		l.Info("bita doctor", "os", runtime.GOOS, "arch", runtime.GOARCH, "cpus", runtime.NumCPU())

		targets := args
		if len(targets) == 0 {
			targets = config.GetConfig().Archives
		}
		if len(targets) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No archives to check. Pass locations as arguments or list them under 'archives' in bita.yaml.")
			return nil
		}

		sopts, err := storageOptions(cmd)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		failed := 0
		for _, target := range targets {
			fmt.Fprintf(w, "Checking %s...\n", storage.Scrub(target))

			start := time.Now()
			b, err := storage.FromURI(target, sopts)
			if err != nil {
				fmt.Fprintf(w, "  [ ] Location: INVALID (%v)\n", err)
				failed++
				continue
			}

			size, err := b.Size(ctx)
			if err != nil {
				fmt.Fprintf(w, "  [ ] Connection: FAILED (%v)\n", err)
				b.Close()
				failed++
				continue
			}
			fmt.Fprintf(w, "  [x] Latency: %s\n", time.Since(start).Truncate(time.Millisecond))
			fmt.Fprintf(w, "  [x] Size: %s\n", humanize.IBytes(uint64(size)))

			r, err := archive.Open(ctx, b)
			if err != nil {
				fmt.Fprintf(w, "  [ ] Archive: FAILED (%v)\n", err)
				failed++
			} else {
				fmt.Fprintf(w, "  [x] Archive: %d chunks, %s source\n", r.TotalChunks(), humanize.IBytes(r.SourceSize()))
			}
			b.Close()
		}

		if failed > 0 {
			fmt.Fprintf(w, "Result: %d of %d archives failed.\n", failed, len(targets))
			return apperrors.Newf(apperrors.TypeConnection, "%d archive checks failed", failed)
		}
		fmt.Fprintln(w, "Result: All archives reachable.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringArrayVar(&httpHeaders, "header", nil, "extra HTTP header as 'Key: Value' (repeatable)")
}
