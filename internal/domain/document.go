package domain

// Document is one parsed source file. Identity is SourcePath within a corpus snapshot.
type Document struct {
	SourcePath string
	Text       string
}

// Chunk is the atomic retrievable unit. ChunkID is 0-based within its source document.
type Chunk struct {
	Text       string `json:"text"`
	SourcePath string `json:"source_path"`
	ChunkID    int    `json:"chunk_id"`
}

// Failure records a document that could not be parsed.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Hit is a chunk matched by a similarity query.
type Hit struct {
	Text       string  `json:"text"`
	SourcePath string  `json:"source_path"`
	ChunkID    int     `json:"chunk_id"`
	Score      float64 `json:"score"`
}

// NewHit attaches a similarity score to chunk metadata.
func NewHit(c Chunk, score float32) Hit {
	return Hit{
		Text:       c.Text,
		SourcePath: c.SourcePath,
		ChunkID:    c.ChunkID,
		Score:      float64(score),
	}
}
