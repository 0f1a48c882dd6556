package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lupppig/bita/internal/archive"
	"github.com/lupppig/bita/internal/chunker"
	"github.com/lupppig/bita/internal/compress"
	"github.com/lupppig/bita/internal/config"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
	"github.com/lupppig/bita/internal/logger"
	"github.com/lupppig/bita/internal/manifest"
	"github.com/lupppig/bita/internal/progress"
	"github.com/lupppig/bita/internal/rolling"
	"github.com/lupppig/bita/internal/storage"
	"github.com/spf13/cobra"
)

var compressCmd = &cobra.Command{
	Use:   "compress [INPUT]",
	Short: "Build an archive from a file",
	Long: `Split INPUT into content-defined chunks, compress every unique chunk once and
publish the archive to the location given by --output.

INPUT may be "-" or omitted to read stdin. Inputs compressed with gzip, lz4 or zstd
are decompressed first, detected from the file extension unless --input-compression
says otherwise. A JSON manifest describing the archive is written next to it.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l := logger.FromContext(ctx)

		input := "-"
		if len(args) == 1 {
			input = args[0]
		}
		if outputURI == "" {
			return apperrors.New(apperrors.TypeConfig, "--output is required", "Pass -o with a path or URI for the archive.")
		}

		opts, err := buildOptions(cmd)
		if err != nil {
			return err
		}
		sopts, err := storageOptions(cmd)
		if err != nil {
			return err
		}

		dest, err := storage.FromURI(outputURI, sopts)
		if err != nil {
			return err
		}
		defer dest.Close()
		if !force {
			if _, err := dest.Size(ctx); err == nil {
				return apperrors.New(apperrors.TypeConfig, "archive "+storage.Scrub(outputURI)+" already exists", "Pass --force to overwrite it.")
			}
		}

		in, size, err := openInput(cmd, input, inputCompression)
		if err != nil {
			return err
		}
		defer in.Close()

		tmp, err := os.CreateTemp(tempDir, "bita-archive-*")
		if err != nil {
			return apperrors.Wrap(err, apperrors.TypeResource, "failed to create temp file", "Check permissions and free space in the temp directory, or pass --temp-dir.")
		}
		defer func() {
			tmp.Close()
			os.Remove(tmp.Name())
		}()

		p := progress.NewContainer(cmd.ErrOrStderr(), quiet)
		bar := progress.AddBuildBar(p, "compress", size)
		opts.OnChunk = func(n int) { progress.Incr(bar, n) }
		opts.Logger = l
		opts.TempDir = tempDir

		l.Info("Compress started",
			"input", input,
			"output", storage.Scrub(outputURI),
			"chunker", opts.Chunker.String(),
			"hash", opts.HashFunc.String(),
			"hash_length", opts.HashLength,
			"compression", opts.Codec.String())

		b, err := archive.NewBuilder(opts)
		if err != nil {
			return err
		}
		stats, err := b.Build(ctx, in, tmp)
		progress.Finish(bar)
		progress.Wait(p, bar)
		if err != nil {
			l.Error("Compress failed", "error", err)
			return err
		}

		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return apperrors.Wrap(err, apperrors.TypeIO, "failed to rewind built archive", "")
		}
		if err := dest.Put(ctx, tmp, int64(stats.ArchiveSize)); err != nil {
			return err
		}

		if !noManifest {
			if err := publishManifest(ctx, tmp, input, sopts); err != nil {
				l.Warn("Failed to write manifest", "error", err)
			}
		}

		l.Info("Compress finished",
			"source", humanize.IBytes(stats.SourceSize),
			"archive", humanize.IBytes(stats.ArchiveSize),
			"chunks", stats.Chunks,
			"unique", stats.UniqueChunks,
			"duration", stats.Duration.Round(time.Millisecond).String())
		return nil
	},
}

// buildOptions starts from the config file and applies explicit flags.
func buildOptions(cmd *cobra.Command) (archive.BuildOptions, error) {
	cfg := config.GetConfig()
	opts := archive.DefaultBuildOptions()
	changed := cmd.Flags().Changed

	var err error
	if opts.Chunker, err = cfg.ChunkerParams(); err != nil {
		return opts, err
	}
	if changed("chunker") {
		if opts.Chunker.Algorithm, err = rolling.ParseAlgorithm(chunkerAlgo); err != nil {
			return opts, apperrors.Wrap(err, apperrors.TypeConfig, "invalid --chunker", "Use buzhash, rollsum or gear.")
		}
	}
	if changed("min-chunk-size") {
		opts.Chunker.MinSize = minChunkSize
	}
	if changed("max-chunk-size") {
		opts.Chunker.MaxSize = maxChunkSize
	}
	if changed("avg-chunk-size") {
		opts.Chunker.Mask = chunker.MaskForAverage(avgChunkSize)
	}
	if changed("window") {
		opts.Chunker.WindowSize = windowSize
	}
	if err := opts.Chunker.Validate(); err != nil {
		return opts, err
	}

	if opts.HashFunc, err = cfg.Hash(); err != nil {
		return opts, err
	}
	if changed("hash-func") {
		if opts.HashFunc, err = hashsum.ParseFunc(hashFunc); err != nil {
			return opts, apperrors.Wrap(err, apperrors.TypeConfig, "invalid --hash-func", "Use blake2b or blake3.")
		}
	}

	opts.HashLength = cfg.HashLength
	if changed("hash-length") {
		opts.HashLength = hashLength
	}

	name := cfg.Compression
	if changed("compression") {
		name = compression
	}
	if opts.Codec, err = compress.ParseCodec(name); err != nil {
		return opts, err
	}

	opts.Workers = cfg.HashWorkers
	if changed("hash-workers") {
		opts.Workers = hashWorkers
	}
	return opts, nil
}

// publishManifest describes the archive staged in f and writes the sidecar
// next to the published archive.
func publishManifest(ctx context.Context, f *os.File, input string, sopts storage.StorageOptions) error {
	local := storage.NewLocalBackend(f.Name())
	defer local.Close()
	r, err := archive.Open(ctx, local)
	if err != nil {
		return err
	}

	source := input
	if input == "-" {
		source = "stdin"
	}
	m := manifest.FromArchive(r, storage.Scrub(outputURI), source)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to rewind built archive", "")
	}
	if m.Checksum, err = manifest.CalculateChecksum(f); err != nil {
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to checksum archive", "")
	}

	data, err := m.Serialize()
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeInternal, "failed to encode manifest", "")
	}
	sidecar, err := storage.FromURI(manifest.SidecarURI(outputURI), sopts)
	if err != nil {
		return err
	}
	defer sidecar.Close()
	return sidecar.Put(ctx, bytes.NewReader(data), int64(len(data)))
}

func init() {
	rootCmd.AddCommand(compressCmd)

	f := compressCmd.Flags()
	f.StringVarP(&outputURI, "output", "o", "", "archive destination (path, s3://, sftp://, ftp://)")
	f.BoolVarP(&force, "force", "f", false, "overwrite an existing archive")
	f.IntVar(&hashLength, "hash-length", hashsum.DefaultLength, "bytes of each chunk hash stored in the archive (4-64)")
	f.StringVar(&hashFunc, "hash-func", "blake2b", "chunk hash function (blake2b, blake3)")
	f.StringVar(&compression, "compression", compress.DefaultCodec.String(), "chunk compression as kind[:level] (none, lz4, zstd, gzip, snappy)")
	f.StringVar(&chunkerAlgo, "chunker", "buzhash", "rolling hash for chunk boundaries (buzhash, rollsum, gear)")
	f.Uint32Var(&minChunkSize, "min-chunk-size", chunker.DefaultMinSize, "minimum chunk size in bytes")
	f.Uint32Var(&avgChunkSize, "avg-chunk-size", chunker.DefaultAvgSize, "target average chunk size in bytes")
	f.Uint32Var(&maxChunkSize, "max-chunk-size", chunker.DefaultMaxSize, "maximum chunk size in bytes")
	f.Uint32Var(&windowSize, "window", chunker.DefaultWindowSize, "rolling hash window in bytes (ignored by gear)")
	f.StringVar(&inputCompression, "input-compression", "auto", "input stream compression (auto, none, gzip, lz4, zstd)")
	f.IntVar(&hashWorkers, "hash-workers", 0, "chunks hashed and compressed in parallel (default: number of CPUs)")
	f.BoolVar(&noManifest, "no-manifest", false, "do not write the JSON manifest next to the archive")
	f.StringVar(&tempDir, "temp-dir", "", "directory for staging the archive (default: system temp)")
}
