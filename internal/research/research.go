package research

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/aqua777/scico/internal/bibitem"
	"github.com/aqua777/scico/internal/retriever"
	"github.com/aqua777/scico/llm"
)

// QueryProvider supplies the user's question when State.UserQuery is
// empty at check_query — spec.md §4.G.2's "interrupt asking for it; on
// resume, store the reply". A CLI driving `ask --question <...>`
// already has the question and never needs this; it exists for hosts
// (e.g. a future interactive shell) that start the loop before the
// question is known.
type QueryProvider func(ctx context.Context) (string, error)

// Loop drives the Research Loop's node graph (spec.md §4.G) over one
// Retriever and one chat model.
type Loop struct {
	Retriever *retriever.Retriever
	Chat      llm.LLM
	Logger    *slog.Logger

	MaxSearchDepth    int
	MaxDocsPerSearch  int
	ExcludeReferences bool

	// QueryProvider is invoked at check_query if the caller starts Run
	// with an empty question. May be nil if the caller always supplies
	// a non-empty question.
	QueryProvider QueryProvider

	// Cancelled is polled between nodes (spec.md §5's "cancel flag
	// checked between nodes"); when it returns true the loop exits with
	// whatever state it has accumulated, Done set, FinalResponse empty.
	Cancelled func() bool
}

// Option configures a Loop.
type Option func(*Loop)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.Logger = logger }
}

func WithCancelled(fn func() bool) Option {
	return func(l *Loop) { l.Cancelled = fn }
}

func WithQueryProvider(fn QueryProvider) Option {
	return func(l *Loop) { l.QueryProvider = fn }
}

// New builds a Loop. maxSearchDepth < 0 (unset) falls back to spec.md
// §4.G.1's default of 5; maxSearchDepth == 0 is a valid boundary value
// per spec.md §8 ("finalize immediately after the first round") and is
// passed through unchanged. maxDocsPerSearch <= 0 falls back to the
// default of 10.
func New(r *retriever.Retriever, chat llm.LLM, maxSearchDepth, maxDocsPerSearch int, excludeReferences bool, opts ...Option) *Loop {
	if maxSearchDepth < 0 {
		maxSearchDepth = 5
	}
	if maxDocsPerSearch <= 0 {
		maxDocsPerSearch = 10
	}
	l := &Loop{
		Retriever:         r,
		Chat:              chat,
		Logger:            slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		MaxSearchDepth:    maxSearchDepth,
		MaxDocsPerSearch:  maxDocsPerSearch,
		ExcludeReferences: excludeReferences,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drives the loop from init to done and returns the terminal
// State. question may be empty if QueryProvider is set.
func (l *Loop) Run(ctx context.Context, question string) (*State, error) {
	state := NewState()
	state.MaxSearchDepth = l.MaxSearchDepth
	state.MaxDocsPerSearch = l.MaxDocsPerSearch
	state.ExcludeReferences = l.ExcludeReferences
	state.UserQuery = question

	for !state.Done {
		if l.Cancelled != nil && l.Cancelled() {
			l.Logger.Info("research loop cancelled", "node", state.Node)
			state.Done = true
			break
		}

		next, err := l.step(ctx, state)
		if err != nil {
			if state.Node == NodeFinalize {
				l.degradeFinalize(state, err)
				state.Done = true
				break
			}
			l.Logger.Error("research node failed, routing to finalize", "node", state.Node, "error", err)
			state.AssessmentStrings = append(state.AssessmentStrings, fmt.Sprintf("node %s failed: %v", state.Node, err))
			state.Node = NodeFinalize
			continue
		}
		state.Node = next
		if next == NodeDone {
			state.Done = true
		}
	}
	return state, nil
}

func (l *Loop) step(ctx context.Context, state *State) (Node, error) {
	switch state.Node {
	case NodeInit:
		return l.nodeInit(ctx, state)
	case NodeCheckQuery:
		return l.nodeCheckQuery(ctx, state)
	case NodeGenQuery:
		return l.nodeGenQuery(ctx, state)
	case NodeSearch:
		return l.nodeSearch(ctx, state)
	case NodeSynthesize:
		return l.nodeSynthesize(ctx, state)
	case NodeJudge:
		return l.nodeJudge(ctx, state)
	case NodeFinalize:
		return l.nodeFinalize(ctx, state)
	default:
		return NodeDone, nil
	}
}

// nodeInit populates indexed_items from the Vector Index and moves to
// check_query — spec.md §4.G.2 node 1.
func (l *Loop) nodeInit(ctx context.Context, state *State) (Node, error) {
	stats := l.Retriever.ListIndexed()
	items := make(map[string]IndexedItemSummary, len(stats.Items))
	for id, st := range stats.Items {
		items[id] = IndexedItemSummary{Count: st.Count, Title: st.Title}
	}
	state.IndexedItems = items
	return NodeCheckQuery, nil
}

// nodeCheckQuery implements spec.md §4.G.2 node 2: the loop's only
// interrupt point.
func (l *Loop) nodeCheckQuery(ctx context.Context, state *State) (Node, error) {
	if state.UserQuery != "" {
		return NodeGenQuery, nil
	}
	if l.QueryProvider == nil {
		return NodeDone, fmt.Errorf("research: user_query is empty and no QueryProvider is configured")
	}
	q, err := l.QueryProvider(ctx)
	if err != nil {
		return NodeDone, fmt.Errorf("research: query provider: %w", err)
	}
	state.UserQuery = q
	return NodeGenQuery, nil
}

type genQueryResponse struct {
	Query  string            `json:"query"`
	Filter map[string]string `json:"filter,omitempty"`
}

// nodeGenQuery implements spec.md §4.G.2 node 3, prompting for a new
// search query whose expected retrieval is complementary to past
// queries. Grounded on original_source/src/RAGQuestionOptimizer.py's
// expand_query/decompose_query reformulation prompts, narrowed to a
// single new query per spec.md's language-neutral semantics.
func (l *Loop) nodeGenQuery(ctx context.Context, state *State) (Node, error) {
	messages := []llm.ChatMessage{
		llm.NewSystemMessage(
			"You are a research assistant refining search queries against a personal paper library. " +
				"Given the user's question, the queries already tried, and the assessment of the last round, " +
				"propose ONE new search query that would retrieve information complementary to what has " +
				"already been found - not a repeat or a trivial rephrasing. " +
				"Reply as JSON: {\"query\": \"...\"}."),
		llm.NewUserMessage(fmt.Sprintf(
			"User question: %s\n\nQueries already tried:\n%s\n\nLast assessment: %s",
			state.UserQuery, bulletList(state.SearchQueries), state.lastAssessment())),
	}

	var resp genQueryResponse
	if err := chatStructured(ctx, l.Chat, messages, &resp); err != nil {
		return NodeDone, fmt.Errorf("gen_query: %w", err)
	}
	if strings.TrimSpace(resp.Query) == "" {
		resp.Query = state.UserQuery
	}
	state.SearchQueries = append(state.SearchQueries, resp.Query)
	return NodeSearch, nil
}

// nodeSearch implements spec.md §4.G.2 node 4.
func (l *Loop) nodeSearch(ctx context.Context, state *State) (Node, error) {
	q := state.lastSearchQuery()
	chunks, err := l.Retriever.Semantic(ctx, q, 2*state.MaxDocsPerSearch)
	if err != nil {
		// Vector-index failure yields an empty chunk-set for this
		// round per spec.md §4.G.3, not a node failure.
		l.Logger.Error("search failed, continuing with empty round", "query", q, "error", err)
		state.RetrievedDocuments = append(state.RetrievedDocuments, nil)
		return NodeSynthesize, nil
	}

	if state.ExcludeReferences {
		chunks = filterReferences(chunks)
	}

	seen := state.seenKeys()
	round := make([]bibitem.Chunk, 0, len(chunks))
	for _, c := range chunks {
		key := c.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		round = append(round, c)
		if len(round) == state.MaxDocsPerSearch {
			break
		}
	}

	state.RetrievedDocuments = append(state.RetrievedDocuments, round)
	return NodeSynthesize, nil
}

func filterReferences(chunks []bibitem.Chunk) []bibitem.Chunk {
	out := make([]bibitem.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.Contains(strings.ToLower(deepestLevel(c.Levels)), "reference") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func deepestLevel(levels bibitem.Levels) string {
	for depth := 7; depth >= 1; depth-- {
		if text, ok := levels[bibitem.LevelKey(depth)]; ok && text != "" {
			return text
		}
	}
	return ""
}

type synthesizeRelevantSource struct {
	Key  string `json:"key"`
	Info string `json:"info"`
}

type synthesizeResponse struct {
	RelevantSources []synthesizeRelevantSource `json:"relevant_sources"`
	SynthesisText   string                     `json:"synthesis_text"`
}

// nodeSynthesize implements spec.md §4.G.2 node 5.
func (l *Loop) nodeSynthesize(ctx context.Context, state *State) (Node, error) {
	round := state.RetrievedDocuments[len(state.RetrievedDocuments)-1]

	messages := []llm.ChatMessage{
		llm.NewSystemMessage(
			"You are synthesizing research findings from retrieved paper excerpts. " +
				"Summarize what the NEW excerpts below add to the existing knowledge, citing " +
				"sources by their key. Reply as JSON: " +
				"{\"relevant_sources\": [{\"key\": \"...\", \"info\": \"...\"}], \"synthesis_text\": \"...\"}."),
		llm.NewUserMessage(fmt.Sprintf(
			"User question: %s\n\nPrevious knowledge:\n%s\n\nNew excerpts:\n%s",
			state.UserQuery, state.lastKnowledge(), formatChunks(round))),
	}

	var resp synthesizeResponse
	if err := chatStructured(ctx, l.Chat, messages, &resp); err != nil {
		return NodeDone, fmt.Errorf("synthesize: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Round %d synthesis\n\n%s\n", state.SearchLoopCount+1, resp.SynthesisText)
	if len(resp.RelevantSources) > 0 {
		b.WriteString("\nSources:\n")
		for _, s := range resp.RelevantSources {
			fmt.Fprintf(&b, "- %s: %s\n", s.Key, s.Info)
		}
	}
	state.KnowledgeStrings = append(state.KnowledgeStrings, b.String())
	return NodeJudge, nil
}

func formatChunks(chunks []bibitem.Chunk) string {
	if len(chunks) == 0 {
		return "(no documents retrieved this round)"
	}
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "## %s (item=%s split=%d)\n%s\n\n", c.Title, c.ItemID, c.SplitID, c.Content)
	}
	return b.String()
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return b.String()
}

type judgeResponse struct {
	Stop      bool   `json:"stop"`
	Reasoning string `json:"reasoning"`
}

// nodeJudge implements spec.md §4.G.2 node 6.
func (l *Loop) nodeJudge(ctx context.Context, state *State) (Node, error) {
	messages := []llm.ChatMessage{
		llm.NewSystemMessage(
			"You decide whether enough has been learned to answer the user's question, or whether " +
				"another search round is needed. Reply as JSON: {\"stop\": true|false, \"reasoning\": \"...\"}."),
		llm.NewUserMessage(fmt.Sprintf(
			"User question: %s\n\nQueries tried so far:\n%s\n\nLatest knowledge:\n%s\n\nLatest assessment: %s",
			state.UserQuery, bulletList(state.SearchQueries), state.lastKnowledge(), state.lastAssessment())),
	}

	var resp judgeResponse
	if err := chatStructured(ctx, l.Chat, messages, &resp); err != nil {
		return NodeDone, fmt.Errorf("judge: %w", err)
	}

	state.AssessmentStrings = append(state.AssessmentStrings, resp.Reasoning)
	state.SearchLoopCount++

	if resp.Stop || state.SearchLoopCount >= state.MaxSearchDepth {
		return NodeFinalize, nil
	}
	return NodeGenQuery, nil
}

type finalizeResponse struct {
	FinalAnswer      string   `json:"final_answer"`
	AnswerEvaluation string   `json:"answer_evaluation"`
	Suggestions      []string `json:"suggestions"`
	Title            string   `json:"title"`
}

// nodeFinalize implements spec.md §4.G.2 node 7.
func (l *Loop) nodeFinalize(ctx context.Context, state *State) (Node, error) {
	report := buildReport(state)

	messages := []llm.ChatMessage{
		llm.NewSystemMessage(
			"You write the final answer to a research question from an accumulated research report. " +
				"Reply as JSON: {\"final_answer\": \"...\", \"answer_evaluation\": \"...\", " +
				"\"suggestions\": [\"...\"], \"title\": \"...\"}."),
		llm.NewUserMessage(fmt.Sprintf("User question: %s\n\nResearch report:\n%s", state.UserQuery, report)),
	}

	var resp finalizeResponse
	if err := chatStructured(ctx, l.Chat, messages, &resp); err != nil {
		return NodeDone, fmt.Errorf("finalize: %w", err)
	}

	state.FinalResponse = formatFinal(resp)
	return NodeDone, nil
}

// buildReport concatenates the rounds, skipping the seed entries at
// index 0 — spec.md §4.G.2 node 7.
func buildReport(state *State) string {
	var b strings.Builder
	for i := 1; i < len(state.SearchQueries); i++ {
		fmt.Fprintf(&b, "## Round %d\nQuery: %s\n", i, state.SearchQueries[i])
		if i < len(state.KnowledgeStrings) {
			fmt.Fprintf(&b, "%s\n", state.KnowledgeStrings[i])
		}
		if i < len(state.AssessmentStrings) {
			fmt.Fprintf(&b, "Assessment: %s\n\n", state.AssessmentStrings[i])
		}
	}
	return b.String()
}

func formatFinal(r finalizeResponse) string {
	var b strings.Builder
	if r.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", r.Title)
	}
	b.WriteString(r.FinalAnswer)
	if r.AnswerEvaluation != "" {
		fmt.Fprintf(&b, "\n\n_Evaluation: %s_\n", r.AnswerEvaluation)
	}
	if len(r.Suggestions) > 0 {
		b.WriteString("\nSuggested follow-ups:\n")
		sort.Strings(r.Suggestions)
		for _, s := range r.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

// degradeFinalize implements spec.md §7's "Model/schema failure" policy
// for the one node that cannot itself route to finalize on failure:
// finalize always produces a final_response, even a degraded one.
func (l *Loop) degradeFinalize(state *State, cause error) {
	l.Logger.Error("finalize failed, degrading to insufficient-information response", "error", cause)
	var b strings.Builder
	b.WriteString("# Insufficient information\n\n")
	fmt.Fprintf(&b, "The research loop could not produce a synthesized answer (%v). ", cause)
	b.WriteString("Below is the raw research report gathered so far:\n\n")
	b.WriteString(buildReport(state))
	state.FinalResponse = b.String()
}
