// Package search provides full-text search over task titles and descriptions.
package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/vinayprograms/orchestrator/tasks"
)

// ErrEmptyQuery is returned when Search is called without query text.
var ErrEmptyQuery = errors.New("empty search query")

// DefaultLimit is used when Search is called with a non-positive limit.
const DefaultLimit = 20

// TaskDocument is the indexed form of a task.
type TaskDocument struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	ProjectID   string `json:"project_id"`
}

// Hit is a single search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Filter narrows a search by exact field values. Empty fields match anything.
type Filter struct {
	Status    string
	ProjectID string
}

// Index is an in-memory bleve index of tasks.
type Index struct {
	index bleve.Index
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping analyzes title and description; status and project
// are matched exactly.
func buildIndexMapping() mapping.IndexMapping {
	taskMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	taskMapping.AddFieldMappingsAt("title", textFieldMapping)
	taskMapping.AddFieldMappingsAt("description", textFieldMapping)
	taskMapping.AddFieldMappingsAt("status", keywordFieldMapping)
	taskMapping.AddFieldMappingsAt("project_id", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = taskMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Put indexes or re-indexes a task.
func (i *Index) Put(t *tasks.Task) error {
	if t == nil || t.ID == "" {
		return nil
	}
	doc := TaskDocument{
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		ProjectID:   t.ProjectID,
	}
	if err := i.index.Index(t.ID, doc); err != nil {
		return fmt.Errorf("failed to index task %s: %w", t.ID, err)
	}
	return nil
}

// Rebuild indexes every task in one batch.
func (i *Index) Rebuild(all []*tasks.Task) error {
	batch := i.index.NewBatch()
	for _, t := range all {
		if t == nil || t.ID == "" {
			continue
		}
		err := batch.Index(t.ID, TaskDocument{
			Title:       t.Title,
			Description: t.Description,
			Status:      string(t.Status),
			ProjectID:   t.ProjectID,
		})
		if err != nil {
			return fmt.Errorf("failed to index task %s: %w", t.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}
	return nil
}

// Remove deletes a task from the index.
func (i *Index) Remove(id string) error {
	return i.index.Delete(id)
}

// Count returns the number of indexed tasks.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Search returns task IDs matching text, best match first.
func (i *Index) Search(text string, limit int, filter Filter) ([]Hit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	title := bleve.NewMatchQuery(text)
	title.SetField("title")
	title.SetBoost(2)
	desc := bleve.NewMatchQuery(text)
	desc.SetField("description")

	boolQuery := bleve.NewBooleanQuery()
	boolQuery.AddMust(bleve.NewDisjunctionQuery(title, desc))
	for field, value := range map[string]string{"status": filter.Status, "project_id": filter.ProjectID} {
		if value == "" {
			continue
		}
		term := bleve.NewTermQuery(value)
		term.SetField(field)
		boolQuery.AddMust(term)
	}

	return i.run(boolQuery, limit)
}

func (i *Index) run(q query.Query, limit int) ([]Hit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}
