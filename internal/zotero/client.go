// Package zotero implements the Library Client (spec.md §4.A) against the
// Zotero Web API: https://www.zotero.org/support/dev/web_api/v3/start.
//
// This mirrors pyzotero's surface (see
// _examples/original_source/src/Zotero.py and
// _examples/original_source/src/ZoteroIntegration.py) rather than its
// SQLite-backed sibling: spec.md §6 describes an HTTP reference-manager
// API, not a local database, so the REST client is the grounded choice.
package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aqua777/scico/internal/bibitem"
)

const (
	apiBase        = "https://api.zotero.org"
	contentTypePDF = "application/pdf"
)

// citationKeyPattern matches a "Citation Key: ..." or "Citekey: ..." line
// in the free-text "extra" field, per spec.md §3.
var citationKeyPattern = regexp.MustCompile(`(?im)^(?:Citation Key|Citekey):\s*(.+?)\s*$`)

// Client talks to a single user's Zotero library over the Web API.
type Client struct {
	httpClient *http.Client
	libraryID  string
	apiKey     string
	libraryRoot string // local filesystem root containing storage/<key>/

	maxRetries int
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets the bounded retry budget for transient (5xx) errors.
// Default 3, per spec.md §7 "Transient external".
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithLogger sets the client's logger. Falls back to slog.Default() if nil.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the given library (user or group id per Zotero's
// convention, passed verbatim) and local library root (the directory
// containing zotero.sqlite and storage/, per spec.md §6 filesystem layout).
func New(libraryID, apiKey, libraryRoot string, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		libraryID:   libraryID,
		apiKey:      apiKey,
		libraryRoot: libraryRoot,
		maxRetries:  3,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CountItems returns the total number of items in the library.
func (c *Client) CountItems(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/"+c.libraryID+"/items/top", url.Values{
		"limit": {"1"},
	})
	if err != nil {
		return 0, fmt.Errorf("zotero: count items: %w", err)
	}
	defer resp.Body.Close()
	total := resp.Header.Get("Total-Results")
	if total == "" {
		return 0, fmt.Errorf("zotero: count items: missing Total-Results header")
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("zotero: count items: parse Total-Results: %w", err)
	}
	return n, nil
}

// ListCollections returns every collection in the library, keyed by name.
func (c *Client) ListCollections(ctx context.Context) (map[string]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/"+c.libraryID+"/collections", url.Values{
		"limit": {"100"},
	})
	if err != nil {
		return nil, fmt.Errorf("zotero: list collections: %w", err)
	}
	defer resp.Body.Close()

	var raw []struct {
		Data struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("zotero: list collections: decode: %w", err)
	}

	out := make(map[string]string, len(raw))
	for _, col := range raw {
		out[col.Data.Name] = col.Data.Key
	}
	return out, nil
}

// GetItem fetches a single item by id. Returns (nil, nil) if the item is a
// child/attachment item (per spec.md §4.A "only parent bibliographic items
// are emitted"), not an error.
func (c *Client) GetItem(ctx context.Context, itemID string) (*bibitem.BibItem, error) {
	raw, err := c.fetchRawItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("zotero: get item %s: %w", itemID, err)
	}
	if raw.Data.ParentItem != "" {
		return nil, nil
	}
	item := c.parseItem(raw)
	c.resolvePDF(ctx, &item, raw)
	return &item, nil
}

// GetItems resolves the sequence of BibItems matching the selector. A
// single item failing to resolve is logged and skipped; it does not abort
// the whole call (spec.md §4.A "Failures").
func (c *Client) GetItems(ctx context.Context, sel bibitem.Selector) ([]bibitem.BibItem, error) {
	switch sel.Kind() {
	case bibitem.KindByID:
		item, err := c.GetItem(ctx, sel.ID())
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, nil
		}
		return []bibitem.BibItem{*item}, nil

	case bibitem.KindByName:
		return c.searchByName(ctx, sel.Name())

	case bibitem.KindByCollectionID:
		return c.itemsByCollection(ctx, sel.CollectionID())

	case bibitem.KindByCollectionName:
		cols, err := c.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		cid, ok := cols[sel.CollectionName()]
		if !ok {
			return nil, fmt.Errorf("zotero: no collection named %q", sel.CollectionName())
		}
		return c.itemsByCollection(ctx, cid)

	case bibitem.KindExplicitList:
		return c.fetchConcurrently(ctx, sel.ExplicitItemIDs())

	default:
		return nil, fmt.Errorf("zotero: unknown selector kind %q", sel.Kind())
	}
}

func (c *Client) searchByName(ctx context.Context, q string) ([]bibitem.BibItem, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/"+c.libraryID+"/items/top", url.Values{
		"q":     {q},
		"limit": {"50"},
	})
	if err != nil {
		return nil, fmt.Errorf("zotero: search by name: %w", err)
	}
	defer resp.Body.Close()
	raws, err := decodeItems(resp)
	if err != nil {
		return nil, err
	}
	return c.parseAndResolveAll(ctx, raws), nil
}

func (c *Client) itemsByCollection(ctx context.Context, collectionID string) ([]bibitem.BibItem, error) {
	resp, err := c.do(ctx, http.MethodGet,
		"/users/"+c.libraryID+"/collections/"+collectionID+"/items/top",
		url.Values{"limit": {"100"}})
	if err != nil {
		return nil, fmt.Errorf("zotero: items by collection: %w", err)
	}
	defer resp.Body.Close()
	raws, err := decodeItems(resp)
	if err != nil {
		return nil, err
	}
	return c.parseAndResolveAll(ctx, raws), nil
}

func (c *Client) parseAndResolveAll(ctx context.Context, raws []rawItem) []bibitem.BibItem {
	items := make([]bibitem.BibItem, 0, len(raws))
	for _, raw := range raws {
		if raw.Data.ParentItem != "" {
			continue
		}
		item := c.parseItem(raw)
		c.resolvePDF(ctx, &item, raw)
		items = append(items, item)
	}
	return items
}

func decodeItems(resp *http.Response) ([]rawItem, error) {
	var raws []rawItem
	if err := json.NewDecoder(resp.Body).Decode(&raws); err != nil {
		return nil, fmt.Errorf("zotero: decode items: %w", err)
	}
	return raws, nil
}

// GetItemFullText wraps Zotero's fulltext endpoint. Supplemental read-only
// operation pulled from
// _examples/original_source/src/ZoteroIntegration.py (additive only — no
// invariant depends on it; see SPEC_FULL.md §4.A).
func (c *Client) GetItemFullText(ctx context.Context, itemID string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/"+c.libraryID+"/items/"+itemID+"/fulltext", nil)
	if err != nil {
		return "", fmt.Errorf("zotero: get fulltext %s: %w", itemID, err)
	}
	defer resp.Body.Close()
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("zotero: decode fulltext %s: %w", itemID, err)
	}
	return body.Content, nil
}

type rawItem struct {
	Key  string `json:"key"`
	Data struct {
		Title            string   `json:"title"`
		Date             string   `json:"date"`
		DOI              string   `json:"DOI"`
		URL              string   `json:"url"`
		AbstractNote     string   `json:"abstractNote"`
		PublicationTitle string   `json:"publicationTitle"`
		ItemType         string   `json:"itemType"`
		Extra            string   `json:"extra"`
		CitationKey      string   `json:"citationKey"`
		ParentItem       string   `json:"parentItem"`
		Creators         []struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
			Name      string `json:"name"`
		} `json:"creators"`
		Tags []struct {
			Tag string `json:"tag"`
		} `json:"tags"`
		Collections []string `json:"collections"`
	} `json:"data"`
	Links struct {
		Attachment struct {
			Href           string `json:"href"`
			AttachmentType string `json:"attachmentType"`
		} `json:"attachment"`
	} `json:"links"`
}

func (c *Client) parseItem(raw rawItem) bibitem.BibItem {
	authors := make([]string, 0, len(raw.Data.Creators))
	for _, cr := range raw.Data.Creators {
		if cr.Name != "" {
			authors = append(authors, cr.Name)
			continue
		}
		authors = append(authors, strings.TrimSpace(cr.LastName+", "+cr.FirstName))
	}
	tags := make([]string, 0, len(raw.Data.Tags))
	for _, t := range raw.Data.Tags {
		tags = append(tags, t.Tag)
	}

	item := bibitem.BibItem{
		ItemID:      raw.Key,
		Title:       raw.Data.Title,
		Authors:     authors,
		Date:        raw.Data.Date,
		Abstract:    raw.Data.AbstractNote,
		DOI:         raw.Data.DOI,
		URL:         raw.Data.URL,
		Publication: raw.Data.PublicationTitle,
		ItemType:    raw.Data.ItemType,
		Tags:        tags,
		Collections: raw.Data.Collections,
		CitationKey: extractCitationKey(raw, authors),
	}
	return item
}

// extractCitationKey implements spec.md §4.A's precedence: dedicated
// field, then the "extra" free-text field, then a synthesized fallback.
func extractCitationKey(raw rawItem, authors []string) string {
	if raw.Data.CitationKey != "" {
		return raw.Data.CitationKey
	}
	if m := citationKeyPattern.FindStringSubmatch(raw.Data.Extra); m != nil {
		return m[1]
	}
	firstAuthor := "unknown"
	if len(authors) > 0 {
		firstAuthor = strings.ToLower(firstWord(authors[0]))
	}
	firstTitleWord := "untitled"
	if w := firstWord(raw.Data.Title); w != "" {
		firstTitleWord = strings.ToLower(w)
	}
	year := "nodate"
	if y := yearFromDate(raw.Data.Date); y != "" {
		year = y
	}
	return firstAuthor + "_" + firstTitleWord + "_" + year
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " ,"); i >= 0 {
		return s[:i]
	}
	return s
}

func yearFromDate(date string) string {
	for _, tok := range strings.FieldsFunc(date, func(r rune) bool {
		return r == '-' || r == '/' || r == ' '
	}) {
		if len(tok) == 4 {
			if _, err := strconv.Atoi(tok); err == nil {
				return tok
			}
		}
	}
	return ""
}

// resolvePDF implements spec.md §4.A "Resolving PDFs".
func (c *Client) resolvePDF(ctx context.Context, item *bibitem.BibItem, raw rawItem) {
	storageKey := ""
	if raw.Links.Attachment.AttachmentType == contentTypePDF {
		storageKey = lastPathSegment(raw.Links.Attachment.Href)
	} else {
		storageKey = c.firstPDFChildStorageKey(ctx, raw.Key)
	}
	if storageKey == "" {
		return
	}
	item.StorageKey = storageKey
	item.PDFPath = c.findPDFInStorage(storageKey)
}

func lastPathSegment(href string) string {
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}

func (c *Client) firstPDFChildStorageKey(ctx context.Context, parentKey string) string {
	resp, err := c.do(ctx, http.MethodGet, "/users/"+c.libraryID+"/items/"+parentKey+"/children", nil)
	if err != nil {
		c.logger.Warn("zotero: list children failed", "item_id", parentKey, "error", err)
		return ""
	}
	defer resp.Body.Close()
	var children []rawItem
	if err := json.NewDecoder(resp.Body).Decode(&children); err != nil {
		return ""
	}
	for _, child := range children {
		if child.Links.Attachment.AttachmentType == contentTypePDF {
			return lastPathSegment(child.Links.Attachment.Href)
		}
	}
	return ""
}

func (c *Client) findPDFInStorage(storageKey string) string {
	dir := filepath.Join(c.libraryRoot, "storage", storageKey)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// fetchConcurrently resolves an explicit list of item ids concurrently,
// bounded, tolerating partial failure (spec.md §4.A "Failures": a single
// item failing does not abort the whole call). Uses a plain errgroup.Group
// (not errgroup.WithContext) since a single item error must not cancel the
// others in flight — §4.A's contract requires partial success, so there is
// no first-error-wins cancellation here.
func (c *Client) fetchConcurrently(ctx context.Context, itemIDs []string) ([]bibitem.BibItem, error) {
	const maxInFlight = 8
	var g errgroup.Group
	g.SetLimit(maxInFlight)

	results := make([]*bibitem.BibItem, len(itemIDs))
	for i, id := range itemIDs {
		i, id := i, id
		g.Go(func() error {
			item, err := c.GetItem(ctx, id)
			if err != nil {
				c.logger.Warn("zotero: item fetch failed", "item_id", id, "error", err)
				return nil
			}
			results[i] = item
			return nil
		})
	}
	_ = g.Wait() // errors are logged per-item above, never propagated

	items := make([]bibitem.BibItem, 0, len(itemIDs))
	for _, item := range results {
		if item != nil {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (c *Client) fetchRawItem(ctx context.Context, itemID string) (rawItem, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/"+c.libraryID+"/items/"+itemID, nil)
	if err != nil {
		return rawItem{}, err
	}
	defer resp.Body.Close()
	var raw rawItem
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return rawItem{}, fmt.Errorf("decode: %w", err)
	}
	return raw, nil
}

// do issues a request against the Zotero Web API with bounded retry and
// exponential back-off on 5xx responses, per spec.md §7 "Transient
// external". The caller owns closing the returned response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	u := apiBase + path
	if query != nil {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
			backoff += time.Duration(rand.IntN(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Zotero-API-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return nil, fmt.Errorf("client error: %d", resp.StatusCode)
		}
		return resp, nil
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", c.maxRetries, lastErr)
}
