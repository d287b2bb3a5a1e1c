package chunker

import (
	"regexp"
	"strings"

	"github.com/aqua777/scico/internal/bibitem"
)

// clauseSplitPattern splits text on the separator cascade spec.md §4.C
// names for the recursive character splitter: newlines (handled
// separately, one line at a time), then ".", "!", "?", ",", ";" — kept as
// the trailing punctuation of each produced piece, grounded on the
// teacher's textsplitter.SplitByRegex/SplitTextKeepSeparator style
// (textsplitter/utils.go), generalized from the teacher's single
// "chunking regex" to spec.md's explicit ordered cascade.
var clauseSplitPattern = regexp.MustCompile(`[^.!?,;]+[.!?,;]?`)

// lineSplit is one atomic unit fed into the merge step: either a whole
// line (from walkHeadings) or, when a line overflows ChunkSize alone, one
// clause of that line.
type lineSplit struct {
	text      string
	levels    bibitem.Levels
	tokenSize int
}

// splitSegments implements spec.md §4.C steps 3-4: turn the per-line
// heading-annotated segments into size-bounded pieces, splitting
// preferentially at newlines, then at the clause cascade, with
// ChunkOverlap tokens of trailing context carried into the next piece.
// The overlap/merge mechanics are ported from the teacher's
// textsplitter.SentenceSplitter.merge (textsplitter/sentence_splitter.go),
// generalized from sentence lists to heading-annotated lines.
func (c *Chunker) splitSegments(segments []headingSegment) []splitPiece {
	splits := c.toLineSplits(segments)
	return c.merge(splits)
}

func (c *Chunker) toLineSplits(segments []headingSegment) []lineSplit {
	splits := make([]lineSplit, 0, len(segments))
	for _, seg := range segments {
		line := seg.text
		size := c.Tokenizer.Size(line + "\n")
		if size <= c.ChunkSize || strings.TrimSpace(line) == "" {
			splits = append(splits, lineSplit{text: line + "\n", levels: seg.levels, tokenSize: size})
			continue
		}
		// Single line overflows ChunkSize alone: fall back to the
		// clause cascade within this one line.
		for _, clause := range clauseSplitPattern.FindAllString(line, -1) {
			splits = append(splits, lineSplit{
				text:      clause,
				levels:    seg.levels,
				tokenSize: c.Tokenizer.Size(clause),
			})
		}
	}
	return splits
}

// merge greedily packs lineSplits into ChunkSize-bounded pieces, closing
// a piece once the next split would overflow it and carrying up to
// ChunkOverlap tokens of the closed piece's tail into the next one —
// the same two-phase close/carry-overlap shape as the teacher's
// SentenceSplitter.merge.
func (c *Chunker) merge(splits []lineSplit) []splitPiece {
	var pieces []splitPiece

	var curBuf []lineSplit
	curLen := 0
	newChunk := true

	closePiece := func() {
		pieces = append(pieces, buildPiece(curBuf))

		lastBuf := curBuf
		curBuf = nil
		curLen = 0
		newChunk = true

		idx := len(lastBuf) - 1
		for idx >= 0 {
			item := lastBuf[idx]
			if curLen+item.tokenSize > c.ChunkOverlap {
				break
			}
			curLen += item.tokenSize
			curBuf = append([]lineSplit{item}, curBuf...)
			idx--
		}
	}

	i := 0
	for i < len(splits) {
		split := splits[i]
		if curLen+split.tokenSize > c.ChunkSize && !newChunk {
			closePiece()
			continue
		}
		curBuf = append(curBuf, split)
		curLen += split.tokenSize
		newChunk = false
		i++
	}

	if !newChunk {
		pieces = append(pieces, buildPiece(curBuf))
	}

	return pieces
}

func buildPiece(buf []lineSplit) splitPiece {
	var sb strings.Builder
	var levels bibitem.Levels
	for i, item := range buf {
		if i == 0 {
			levels = item.levels
		}
		sb.WriteString(item.text)
	}
	return splitPiece{text: sb.String(), levels: levels}
}
