// Package research implements the Research Loop (spec.md §4.G): a
// deterministic finite graph over a shared typed state, executed
// single-threaded and cooperatively. The only suspension point is
// check_query's interrupt; every other node runs to completion before
// control returns to the caller.
package research

import "github.com/aqua777/scico/internal/bibitem"

// Node names the graph's current position, per spec.md §4.G.2's
// `init → check_query → gen_query → search → synthesize → judge →
// {gen_query | finalize} → END`.
type Node string

const (
	NodeInit       Node = "init"
	NodeCheckQuery Node = "check_query"
	NodeGenQuery   Node = "gen_query"
	NodeSearch     Node = "search"
	NodeSynthesize Node = "synthesize"
	NodeJudge      Node = "judge"
	NodeFinalize   Node = "finalize"
	NodeDone       Node = "done"
)

// IndexedItemSummary is the per-item breakdown state.indexed_items
// snapshots from the Vector Index at init, per spec.md §4.G.1.
type IndexedItemSummary struct {
	Count int
	Title string
}

// State is the Research Loop's shared state (spec.md §4.G.1). The four
// parallel sequences (SearchQueries, RetrievedDocuments,
// KnowledgeStrings, AssessmentStrings) stay length-aligned modulo their
// seed entries: after each completed round all four grow by exactly one
// element.
type State struct {
	UserQuery    string
	IndexedItems map[string]IndexedItemSummary

	SearchQueries      []string
	RetrievedDocuments [][]bibitem.Chunk
	KnowledgeStrings   []string
	AssessmentStrings  []string

	SearchLoopCount   int
	MaxSearchDepth    int
	MaxDocsPerSearch  int
	ExcludeReferences bool

	FinalResponse string

	// Node is the node the loop is currently at or suspended on; Done
	// reports whether the loop has reached NodeDone.
	Node Node
	Done bool
}

// NewState returns a State with spec.md §4.G.1's initial values.
func NewState() *State {
	return &State{
		SearchQueries:      []string{"No prior queries. Use user input to find general information."},
		RetrievedDocuments: [][]bibitem.Chunk{{}},
		KnowledgeStrings:   []string{"First synthesis."},
		AssessmentStrings:  []string{"First search; initial knowledge."},
		MaxSearchDepth:     5,
		MaxDocsPerSearch:   10,
		Node:               NodeInit,
	}
}

func (s *State) lastSearchQuery() string {
	return s.SearchQueries[len(s.SearchQueries)-1]
}

func (s *State) lastKnowledge() string {
	return s.KnowledgeStrings[len(s.KnowledgeStrings)-1]
}

func (s *State) lastAssessment() string {
	return s.AssessmentStrings[len(s.AssessmentStrings)-1]
}

// seenKeys collects every (item_id, split_id) already present across
// all prior retrieval rounds, for the search node's dedup rule.
func (s *State) seenKeys() map[bibitem.Key]bool {
	seen := make(map[bibitem.Key]bool)
	for _, round := range s.RetrievedDocuments {
		for _, c := range round {
			seen[c.Key()] = true
		}
	}
	return seen
}
