package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrArticleRequired = errors.New("article is required")

// ArticleLink tracks one product URL through a batch run.
type ArticleLink struct {
	Article   string    `json:"article"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Outcome   string    `json:"outcome,omitempty"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// LinkStorage is a JSON file of ArticleLinks keyed by article. Adds are
// persisted immediately; status updates are persisted by Flush.
type LinkStorage struct {
	mu       sync.RWMutex
	links    map[string]*ArticleLink
	filename string
	dirty    bool
}

func NewLinkStorage(filename string) (*LinkStorage, error) {
	ls := &LinkStorage{
		links:    make(map[string]*ArticleLink),
		filename: filename,
	}

	if err := ls.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return ls, nil
}

func (ls *LinkStorage) Add(link *ArticleLink) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if link.Article == "" {
		return ErrArticleRequired
	}

	ls.put(link)
	return ls.save()
}

func (ls *LinkStorage) AddBatch(links []*ArticleLink) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for _, link := range links {
		if link.Article == "" {
			continue
		}
		ls.put(link)
	}

	return ls.save()
}

func (ls *LinkStorage) put(link *ArticleLink) {
	now := time.Now()
	link.AddedAt = now
	link.UpdatedAt = now
	if link.Status == "" {
		link.Status = StatusPending
	}
	ls.links[link.Article] = link
}

func (ls *LinkStorage) Get(article string) (*ArticleLink, bool) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	link, exists := ls.links[article]
	return link, exists
}

// GetPending returns pending links ordered by article.
func (ls *LinkStorage) GetPending() []*ArticleLink {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var pending []*ArticleLink
	for _, link := range ls.links {
		if link.Status == StatusPending {
			pending = append(pending, link)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Article < pending[j].Article })
	return pending
}

func (ls *LinkStorage) UpdateStatus(article, status, outcome, errorMsg string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	link, exists := ls.links[article]
	if !exists {
		return fmt.Errorf("link not found: %s", article)
	}

	link.Status = status
	link.Outcome = outcome
	link.UpdatedAt = time.Now()
	link.Error = errorMsg
	ls.dirty = true

	return nil
}

// Flush writes pending status updates to disk.
func (ls *LinkStorage) Flush() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if !ls.dirty {
		return nil
	}
	return ls.save()
}

func (ls *LinkStorage) GetStats() map[string]int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	stats := make(map[string]int)
	for _, link := range ls.links {
		stats[link.Status]++
	}
	stats["total"] = len(ls.links)
	return stats
}

func (ls *LinkStorage) save() error {
	data, err := json.MarshalIndent(ls.links, "", "  ")
	if err != nil {
		return err
	}

	if err := writeFileAtomic(ls.filename, data); err != nil {
		return err
	}
	ls.dirty = false
	return nil
}

func (ls *LinkStorage) Load() error {
	data, err := os.ReadFile(ls.filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &ls.links)
}

// writeFileAtomic writes to a temp file next to filename and renames it.
func writeFileAtomic(filename string, data []byte) error {
	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, filename)
}
