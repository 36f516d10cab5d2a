package content

import "time"

// Source identifies where the last loaded document came from.
type Source string

const (
	SourceUnknown Source = "unknown"
	SourceFile    Source = "file"
	SourceBlob    Source = "blob"
	// SourceSeed is the seed file read as a fallback in blob mode.
	SourceSeed Source = "seed"
)

// Meta describes the most recent successful load or save.
type Meta struct {
	Source   Source    `json:"source"`
	SHA256   string    `json:"sha256"`
	Size     int       `json:"size"`
	LoadedAt time.Time `json:"loaded_at"`
}
