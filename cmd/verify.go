package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/lupppig/bita/internal/clone"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/logger"
	"github.com/lupppig/bita/internal/storage"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify ARCHIVE FILE",
	Short: "Check how much of an archive a local file already holds",
	Long: `Chunk FILE with the archive's parameters and report which archive chunks it
lacks. Exits non-zero unless FILE is byte-for-byte the archived source.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l := logger.FromContext(ctx)

		sopts, err := storageOptions(cmd)
		if err != nil {
			return err
		}
		opts, err := cloneOptions(cmd)
		if err != nil {
			return err
		}
		opts.Logger = l

		r, backend, err := openArchive(ctx, args[0], sopts)
		if err != nil {
			return err
		}
		defer backend.Close()

		in, _, err := openInput(cmd, args[1], "auto")
		if err != nil {
			return err
		}
		defer in.Close()

		l.Info("Verifying", "archive", storage.Scrub(args[0]), "file", args[1])
		cmp, err := clone.Compare(ctx, r, in, opts)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Chunks present: %d (%s)\n", cmp.ChunksPresent, humanize.IBytes(cmp.BytesPresent))
		fmt.Fprintf(w, "Chunks missing: %d (%s)\n", cmp.ChunksMissing, humanize.IBytes(cmp.BytesMissing))

		if !cmp.Identical {
			fmt.Fprintln(w, "Result: file differs from the archived source")
			return apperrors.Wrapf(apperrors.ErrIntegrityMismatch, apperrors.TypeIntegrity,
				"%s does not match %s", args[1], storage.Scrub(args[0]))
		}
		fmt.Fprintln(w, "Result: file matches the archived source")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().IntVar(&hashWorkers, "hash-workers", 0, "chunks hashed in parallel (default: number of CPUs)")
}
