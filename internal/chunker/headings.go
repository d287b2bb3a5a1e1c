package chunker

import (
	"regexp"
	"strings"

	"github.com/aqua777/scico/internal/bibitem"
)

// atxHeadingPattern matches ATX headings ("#" through "#######") at the
// start of a line, grounded on the teacher's
// textsplitter/markdown_splitter.go buildHeaderPattern (same regex shape,
// reused here per-line rather than whole-document since the Chunker
// needs the running heading stack at every line, not just split points).
var atxHeadingPattern = regexp.MustCompile(`^(#{1,7})\s+(.+)$`)

const maxHeadingDepth = 7

// walkHeadings implements spec.md §4.C steps 2-3: walk the document
// line-by-line, tracking a heading stack indexed by ATX level 1-7. Each
// line inherits the stack's current state. A heading line opens a new
// level and clears all deeper levels.
func walkHeadings(markdown string) []headingSegment {
	lines := strings.Split(markdown, "\n")
	segments := make([]headingSegment, 0, len(lines))

	stack := make(bibitem.Levels, maxHeadingDepth)

	for _, line := range lines {
		if m := atxHeadingPattern.FindStringSubmatch(line); m != nil {
			depth := len(m[1])
			if depth > maxHeadingDepth {
				depth = maxHeadingDepth
			}
			stack[bibitem.LevelKey(depth)] = strings.TrimSpace(m[2])
			for deeper := depth + 1; deeper <= maxHeadingDepth; deeper++ {
				delete(stack, bibitem.LevelKey(deeper))
			}
		}

		segments = append(segments, headingSegment{
			text:   line,
			levels: cloneLevels(stack),
		})
	}

	return segments
}

func cloneLevels(levels bibitem.Levels) bibitem.Levels {
	out := make(bibitem.Levels, len(levels))
	for k, v := range levels {
		out[k] = v
	}
	return out
}
