// Package manifest describes a published archive in a small JSON sidecar
// stored next to it.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lupppig/bita/internal/archive"
	apperrors "github.com/lupppig/bita/internal/errors"
)

// Suffix is appended to the archive location to name the sidecar.
const Suffix = ".manifest.json"

type Manifest struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Source   string `json:"source,omitempty"`
	Archive  string `json:"archive"`
	// FormatVersion is the archive header version.
	FormatVersion  int            `json:"format_version"`
	ToolVersion    string         `json:"tool_version,omitempty"`
	HashFunc       string         `json:"hash_func"`
	HashLength     int            `json:"hash_length"`
	Chunker        string         `json:"chunker"`
	Compression    string         `json:"compression,omitempty"`
	Codecs         map[string]int `json:"codecs,omitempty"`
	SourceSize     uint64         `json:"source_size"`
	SourceChecksum string         `json:"source_checksum"`
	Chunks         int            `json:"chunks"`
	UniqueChunks   int            `json:"unique_chunks"`
	ChunkDataSize  uint64         `json:"chunk_data_size"`
	ArchiveSize    int64          `json:"archive_size"`
	Checksum       string         `json:"checksum,omitempty"` // SHA-256 of the archive file
	CreatedAt      time.Time      `json:"created_at"`
}

func New(archiveLocation, source string) *Manifest {
	return &Manifest{
		ID:        uuid.NewString(),
		Archive:   archiveLocation,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// FromArchive fills a manifest from an opened archive.
func FromArchive(r *archive.Reader, archiveLocation, source string) *Manifest {
	m := New(archiveLocation, source)
	h := r.Header()
	d := r.Dictionary()

	m.FormatVersion = archive.Version
	m.HashFunc = h.HashFunc.String()
	m.HashLength = h.HashLength
	m.Chunker = h.Chunker.String()
	m.SourceSize = d.SourceSize
	m.SourceChecksum = d.SourceChecksum.String()
	m.Chunks = r.TotalChunks()
	m.UniqueChunks = r.UniqueChunks()
	m.ChunkDataSize = d.ChunkDataSize()
	m.ArchiveSize = r.ArchiveSize()
	if d.Created > 0 {
		m.CreatedAt = time.Unix(d.Created, 0).UTC()
	}

	usage := d.CodecUsage()
	if len(usage) > 0 {
		m.Codecs = make(map[string]int, len(usage))
		for k, n := range usage {
			m.Codecs[k.String()] = n
		}
	}
	return m
}

func (m *Manifest) Serialize() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func Deserialize(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeFormat, "invalid manifest", "")
	}
	if m.ID == "" || m.Archive == "" {
		return nil, apperrors.New(apperrors.TypeFormat, "manifest is missing id or archive", "")
	}
	return &m, nil
}

// SidecarURI returns where the manifest of the archive at uri lives. A
// query string stays at the end.
func SidecarURI(uri string) string {
	base, query, found := strings.Cut(uri, "?")
	if found {
		return base + Suffix + "?" + query
	}
	return base + Suffix
}

func CalculateChecksum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
