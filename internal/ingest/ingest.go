package ingest

import "time"

// File is one document discovered on disk.
type File struct {
	Path        string
	ContentType string
	Size        int64
	ModTime     time.Time
	Err         string
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
	Failed  uint32
}
