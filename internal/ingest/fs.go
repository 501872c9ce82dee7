package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

// Walk lists the documents under root with an allowed extension, skipping
// hidden entries if requested. Unreadable entries are reported, not fatal.
func Walk(ctx context.Context, root string, skipHidden bool) ([]File, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var files []File
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			files = append(files, File{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			stats.Skipped++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ct := constants.ContentTypeForExt(filepath.Ext(path))
		if ct == "" {
			stats.Skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			files = append(files, File{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		stats.Matched++
		files = append(files, File{Path: path, ContentType: ct, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return files, stats, fmt.Errorf("walk: %w", err)
	}
	return files, stats, nil
}

// ReadDocument loads path as pipeline input, deriving the content type from
// its extension. maxBytes <= 0 disables the size check.
func ReadDocument(path string, maxBytes int64) (pipeline.DocumentInput, error) {
	ct := constants.ContentTypeForExt(filepath.Ext(path))
	if ct == "" {
		return pipeline.DocumentInput{}, fmt.Errorf("unsupported or missing extension: %q", filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return pipeline.DocumentInput{}, err
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return pipeline.DocumentInput{}, fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.DocumentInput{}, err
	}
	return pipeline.DocumentInput{Data: data, ContentType: ct, Filename: filepath.Base(path)}, nil
}

// Seen remembers document contents by SHA-256 so repeated watcher events for
// the same bytes are processed once.
type Seen struct {
	mu     sync.Mutex
	hashes map[string]string
}

func NewSeen() *Seen {
	return &Seen{hashes: make(map[string]string)}
}

// Mark records data and reports whether it was new, along with its hash.
func (s *Seen) Mark(path string, data []byte) (bool, string) {
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hashes[hashHex]; ok {
		return false, hashHex
	}
	s.hashes[hashHex] = path
	return true, hashHex
}
