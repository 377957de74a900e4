package app

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffChunk is one changed run of text between two renderings.
type DiffChunk struct {
	Type    string `json:"type"` // "added" | "removed"
	Content string `json:"content"`
}

// DocumentDiff compares a session's original rendering with its current one.
type DocumentDiff struct {
	SessionID string      `json:"session_id"`
	Added     int         `json:"added"`
	Removed   int         `json:"removed"`
	Chunks    []DiffChunk `json:"chunks"`
}

// diffChunks computes a character-level diff cleaned up for readability.
// Equal runs and whitespace-only changes are dropped.
func diffChunks(base, head string) []DiffChunk {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(base, head, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	chunks := make([]DiffChunk, 0)
	for _, d := range diffs {
		var kind string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = "added"
		case diffmatchpatch.DiffDelete:
			kind = "removed"
		default:
			continue
		}
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		chunks = append(chunks, DiffChunk{Type: kind, Content: d.Text})
	}
	return chunks
}

func newDocumentDiff(id, base, head string) *DocumentDiff {
	out := &DocumentDiff{SessionID: id, Chunks: diffChunks(base, head)}
	for _, c := range out.Chunks {
		if c.Type == "added" {
			out.Added++
		} else {
			out.Removed++
		}
	}
	return out
}
