package domain

import (
	"encoding/json"
	"fmt"
)

// PendingRevision is the placeholder revision a manifest carries until the
// commit holding its artifacts is known.
const PendingRevision = "PENDING"

// Artifact names, relative to the artifacts prefix.
const (
	IndexFile            = "vectors.index"
	MetaFile             = "meta.json"
	FailuresFile         = "failures.json"
	ConversionReportFile = "conversion_report.json"
	ManifestFile         = "manifest.json"
)

// Manifest describes one build: provenance, counts and artifact checksums.
type Manifest struct {
	Revision       string         `json:"revision"`
	CreatedAt      string         `json:"created_at"`
	SourceRepo     string         `json:"source_repo,omitempty"`
	SourceRevision string         `json:"source_revision"`
	SourceSubdir   string         `json:"source_subdir,omitempty"`
	EmbedModel     string         `json:"embed_model"`
	EmbeddingDim   int            `json:"embedding_dim"`
	NumChunks      int            `json:"num_chunks"`
	NumDocsOK      int            `json:"num_docs_ok"`
	NumDocsFailed  int            `json:"num_docs_failed"`
	IndexCodec     string         `json:"index_codec,omitempty"`
	Chunking       ChunkingParams `json:"chunking"`
	Files          ArtifactPaths  `json:"files"`
	Checksums      Checksums      `json:"checksums"`
}

// ChunkingParams records the chunker configuration of a build.
type ChunkingParams struct {
	ChunkChars int `json:"chunk_chars"`
	Overlap    int `json:"overlap"`
}

// ArtifactPaths holds the store-relative path of every artifact.
type ArtifactPaths struct {
	Index            string `json:"index"`
	Meta             string `json:"meta_json"`
	Failures         string `json:"failures_json"`
	ConversionReport string `json:"conversion_report_json"`
	Manifest         string `json:"manifest_json"`
}

// Checksums holds hex sha256 digests of each artifact's raw bytes.
type Checksums struct {
	Index            string `json:"index_sha256"`
	Meta             string `json:"meta_sha256"`
	ConversionReport string `json:"conversion_report_sha256"`
	Failures         string `json:"failures_sha256"`
}

// NewArtifactPaths lays out artifact paths under prefix.
func NewArtifactPaths(prefix string) ArtifactPaths {
	j := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "/" + name
	}
	return ArtifactPaths{
		Index:            j(IndexFile),
		Meta:             j(MetaFile),
		Failures:         j(FailuresFile),
		ConversionReport: j(ConversionReportFile),
		Manifest:         j(ManifestFile),
	}
}

// Finalized reports whether the revision has been patched to a real commit id.
func (m *Manifest) Finalized() bool {
	return m.Revision != "" && m.Revision != PendingRevision
}

// ChecksumFor returns the expected digest for a local artifact file name.
func (m *Manifest) ChecksumFor(name string) (string, bool) {
	switch name {
	case IndexFile:
		return m.Checksums.Index, true
	case MetaFile:
		return m.Checksums.Meta, true
	case FailuresFile:
		return m.Checksums.Failures, true
	case ConversionReportFile:
		return m.Checksums.ConversionReport, true
	}
	return "", false
}

// Marshal renders the manifest the way it is stored.
func (m *Manifest) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return b, nil
}

// ParseManifest decodes a stored manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}
	return &m, nil
}
