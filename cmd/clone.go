package cmd

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lupppig/bita/internal/clone"
	"github.com/lupppig/bita/internal/config"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/logger"
	"github.com/lupppig/bita/internal/progress"
	"github.com/lupppig/bita/internal/storage"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
)

var cloneCmd = &cobra.Command{
	Use:   "clone ARCHIVE OUTPUT",
	Short: "Rebuild a file from an archive, reusing local seed data",
	Long: `Clone reads the archive's dictionary and rebuilds the original file at OUTPUT.

Every --seed file (and stdin with --seed-stdin) is chunked with the archive's own
parameters; chunks it shares with the archive are copied locally. Whatever no seed
provides is fetched from the archive with byte-range reads. --seed-output uses the
previous contents of OUTPUT as a seed, which makes updating a file in place cheap.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l := logger.FromContext(ctx)
		archiveURI, outputPath := args[0], args[1]

		sopts, err := storageOptions(cmd)
		if err != nil {
			return err
		}
		opts, err := cloneOptions(cmd)
		if err != nil {
			return err
		}
		opts.Logger = l

		r, backend, err := openArchive(ctx, archiveURI, sopts)
		if err != nil {
			return err
		}
		defer backend.Close()

		l.Info("Clone started",
			"archive", storage.Scrub(archiveURI),
			"output", outputPath,
			"size", humanize.IBytes(r.SourceSize()),
			"chunks", r.TotalChunks(),
			"unique", r.UniqueChunks())

		var paths []string
		if seedStdin {
			paths = append(paths, "-")
		}
		paths = append(paths, seedFiles...)
		if seedOutput {
			paths = append(paths, outputPath)
		}

		p := progress.NewContainer(cmd.ErrOrStderr(), quiet)
		var (
			seeds []clone.SeedInput
			bars  []*mpb.Bar
		)
		for _, path := range paths {
			in, _, err := openInput(cmd, path, "auto")
			if err != nil {
				if path == outputPath && apperrors.IsType(err, apperrors.TypeResource) {
					l.Debug("Output does not exist yet, nothing to seed from", "output", outputPath)
					continue
				}
				return err
			}
			defer in.Close()

			name := path
			if path == "-" {
				name = "stdin"
			}
			bar := progress.AddSeedBar(p, name)
			bars = append(bars, bar)
			seeds = append(seeds, clone.SeedInput{Name: name, Reader: progress.NewReader(in, bar)})
		}

		out, err := clone.CreateFileOutput(outputPath, r.SourceSize(), force || seedOutput)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				out.Abort()
			}
		}()

		total := progress.AddCloneBar(p, "clone", int64(r.SourceSize()))
		bars = append(bars, total)
		opts.OnWrite = func(n uint64) { progress.Incr64(total, n) }

		res, err := clone.Clone(ctx, r, seeds, out, opts)
		for _, b := range bars[:len(bars)-1] {
			progress.Finish(b)
		}
		progress.Wait(p, bars...)
		if err != nil {
			l.Error("Clone failed", "error", err)
			return err
		}

		if verifyOutput {
			if err := clone.VerifyOutput(ctx, r, out); err != nil {
				return err
			}
			l.Info("Output checksum verified", "checksum", r.SourceChecksum().Short())
		}
		if err := out.Commit(); err != nil {
			return err
		}
		committed = true

		for _, s := range res.Seeds {
			l.Info("Seed summary",
				"seed", s.Name,
				"chunks_used", s.ChunksUsed,
				"used", humanize.IBytes(s.BytesUsed),
				"read", humanize.IBytes(s.BytesRead))
		}
		l.Info("Clone finished",
			"output", outputPath,
			"from_seeds", humanize.IBytes(res.BytesFromSeeds()),
			"fetched", humanize.IBytes(res.Fetch.BytesFetched),
			"chunks_fetched", res.Fetch.ChunksFetched,
			"duration", res.Duration.Round(time.Millisecond).String())
		return nil
	},
}

func cloneOptions(cmd *cobra.Command) (clone.Options, error) {
	cfg := config.GetConfig()
	opts := clone.DefaultOptions()
	changed := cmd.Flags().Changed

	opts.HashWorkers = cfg.HashWorkers
	if changed("hash-workers") {
		opts.HashWorkers = hashWorkers
	}
	opts.Fetch.Workers = cfg.FetchWorkers
	if changed("fetch-workers") {
		opts.Fetch.Workers = fetchWorkers
	}
	opts.Fetch.MaxGap = cfg.MaxGapBytes
	opts.Fetch.MaxBatch = cfg.MaxBatchBytes
	if changed("max-batch") {
		n, err := parseBytes("max-batch", maxBatchBytes)
		if err != nil {
			return opts, err
		}
		opts.Fetch.MaxBatch = n
	}
	return opts, nil
}

func init() {
	rootCmd.AddCommand(cloneCmd)

	f := cloneCmd.Flags()
	f.StringArrayVar(&seedFiles, "seed", nil, "file to reuse chunks from (repeatable, gzip/lz4/zstd detected by extension)")
	f.BoolVar(&seedStdin, "seed-stdin", false, "read an additional seed from stdin")
	f.BoolVar(&seedOutput, "seed-output", false, "use the existing OUTPUT file as a seed and replace it")
	f.BoolVarP(&force, "force", "f", false, "overwrite OUTPUT if it exists")
	f.BoolVar(&verifyOutput, "verify", false, "check the rebuilt file against the archive checksum before publishing it")
	f.IntVar(&hashWorkers, "hash-workers", 0, "seed chunks hashed in parallel (default: number of CPUs)")
	f.IntVar(&fetchWorkers, "fetch-workers", 0, "concurrent archive reads (default: number of CPUs)")
	f.StringVar(&maxBatchBytes, "max-batch", "8MiB", "largest single range read when fetching adjacent chunks")
	f.StringArrayVar(&httpHeaders, "header", nil, "extra HTTP header as 'Key: Value' (repeatable)")
	f.IntVar(&httpRetries, "retries", 3, "retries for failed HTTP range reads")
}
