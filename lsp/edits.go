package lsp

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/aymanbagabas/go-udiff"
)

// ComputeEdits returns the edits turning before into after, with UTF-16 positions.
func ComputeEdits(before string, after string) []TextEdit {
	diffs := udiff.Strings(before, after)

	edits := make([]TextEdit, 0, len(diffs))
	for _, d := range diffs {
		edits = append(edits, TextEdit{
			Range: Range{
				Start: position(before, d.Start),
				End:   position(before, d.End),
			},
			NewText: d.New,
		})
	}

	return edits
}

// position converts a byte offset within text into a line and UTF-16 character offset.
func position(text string, offset int) Position {
	prefix := text[:offset]
	line := strings.Count(prefix, "\n")

	if idx := strings.LastIndexByte(prefix, '\n'); idx >= 0 {
		prefix = prefix[idx+1:]
	}

	var character int

	for len(prefix) > 0 {
		r, size := utf8.DecodeRuneInString(prefix)
		prefix = prefix[size:]

		if n := utf16.RuneLen(r); n > 0 {
			character += n
		} else {
			character++
		}
	}

	return Position{Line: line, Character: character}
}
