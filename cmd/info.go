package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lupppig/bita/internal/archive"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/manifest"
	"github.com/lupppig/bita/internal/storage"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:           "info ARCHIVE",
	Short:         "Describe an archive",
	Long:          `Print the chunking parameters, sizes and compression mix recorded in an archive.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sopts, err := storageOptions(cmd)
		if err != nil {
			return err
		}
		r, backend, err := openArchive(ctx, args[0], sopts)
		if err != nil {
			return err
		}
		defer backend.Close()

		w := cmd.OutOrStdout()
		m := manifest.FromArchive(r, storage.Scrub(args[0]), "")
		switch infoFormat {
		case "text":
		case "json":
			data, err := m.Serialize()
			if err != nil {
				return apperrors.Wrap(err, apperrors.TypeInternal, "failed to encode archive info", "")
			}
			fmt.Fprintln(w, string(data))
			return nil
		default:
			return apperrors.Newf(apperrors.TypeConfig, "unknown format %q (want text or json)", infoFormat)
		}

		h := r.Header()
		fmt.Fprintf(w, "Archive:          %s\n", m.Archive)
		fmt.Fprintf(w, "Format version:   %d\n", archive.Version)
		fmt.Fprintf(w, "Created:          %s\n", m.CreatedAt.Local().Format(time.RFC3339))
		fmt.Fprintf(w, "Source size:      %s (%d bytes)\n", humanize.IBytes(m.SourceSize), m.SourceSize)
		fmt.Fprintf(w, "Source checksum:  %s\n", m.SourceChecksum)
		fmt.Fprintf(w, "Archive size:     %s\n", humanize.IBytes(uint64(m.ArchiveSize)))
		fmt.Fprintf(w, "Dictionary size:  %s\n", humanize.IBytes(h.DictionaryLength))
		fmt.Fprintf(w, "Chunk hash:       %s truncated to %d bytes\n", m.HashFunc, m.HashLength)
		fmt.Fprintf(w, "Chunker:          %s\n", m.Chunker)
		fmt.Fprintf(w, "Average chunk:    ~%s\n", humanize.IBytes(h.Chunker.AverageSize()))
		fmt.Fprintf(w, "Chunks:           %d (%d unique)\n", m.Chunks, m.UniqueChunks)
		fmt.Fprintf(w, "Chunk data:       %s\n", humanize.IBytes(m.ChunkDataSize))
		if m.SourceSize > 0 {
			fmt.Fprintf(w, "Ratio:            %.2f%%\n", float64(m.ArchiveSize)*100/float64(m.SourceSize))
		}

		kinds := make([]string, 0, len(m.Codecs))
		for k := range m.Codecs {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-8s %d chunks\n", k, m.Codecs[k])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVar(&infoFormat, "format", "text", "output format (text, json)")
}
