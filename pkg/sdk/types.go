package ragdex

import "time"

// Hit is a single search result.
type Hit struct {
	Text       string
	SourcePath string
	ChunkID    int
	Score      float64
}

// Status describes the loaded index generation.
type Status struct {
	Loaded       bool
	Revision     string
	EmbedModel   string
	NumChunks    int
	Generation   uint64
	LoadedAt     time.Time
	CacheEntries int
}
