package jobs

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/maltedev/wb-deal-scraper/internal/database"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/maltedev/wb-deal-scraper/internal/scraper"
)

type memRepo struct {
	mu       sync.Mutex
	jobs     []*models.Job
	outcomes []models.PageOutcome
	deals    map[string][]models.ProductRecord
	finished map[string]error
	progress map[string][3]int
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		deals:    make(map[string][]models.ProductRecord),
		finished: make(map[string]error),
		progress: make(map[string][3]int),
	}
}

func (r *memRepo) Create(_ context.Context, spec models.JobSpec) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := &models.Job{ID: uuid.NewString(), Spec: spec, Status: models.JobPending}
	r.jobs = append(r.jobs, job)
	return job, nil
}

func (r *memRepo) Get(_ context.Context, id string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, database.ErrNotFound
}

func (r *memRepo) List(context.Context, int) ([]*models.Job, error) {
	return r.jobs, nil
}

func (r *memRepo) Deals(_ context.Context, id string) ([]models.ProductRecord, error) {
	return r.deals[id], nil
}

func (r *memRepo) Stats(context.Context) (*models.Stats, error) {
	return &models.Stats{Jobs: map[models.JobStatus]int{models.JobPending: len(r.jobs)}}, nil
}

func (r *memRepo) ClaimNext(context.Context) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Status == models.JobPending {
			j.Status = models.JobRunning
			c := *j
			return &c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (r *memRepo) UpdateProgress(_ context.Context, id string, links, processed, deals int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[id] = [3]int{links, processed, deals}
	return nil
}

func (r *memRepo) Finish(_ context.Context, id string, jobErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[id] = jobErr
	return nil
}

func (r *memRepo) RecordOutcome(_ context.Context, jobID string, o models.PageOutcome, isDeal bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	if isDeal {
		r.deals[jobID] = append(r.deals[jobID], *o.Record)
	}
	return nil
}

type fakeHarvester struct {
	links    []string
	err      error
	gotSpec  scraper.SearchSpec
	gotPages int
}

func (h *fakeHarvester) Harvest(_ context.Context, spec scraper.SearchSpec, pages int) ([]string, error) {
	h.gotSpec, h.gotPages = spec, pages
	return h.links, h.err
}

type fakeExtractor struct {
	outcomes map[string]models.PageOutcome
	calls    int
}

func (e *fakeExtractor) RunParallel(_ context.Context, urls []string, onResult func(models.PageOutcome)) []models.PageOutcome {
	e.calls++
	var out []models.PageOutcome
	for _, u := range urls {
		o := e.outcomes[u]
		out = append(out, o)
		onResult(o)
	}
	return out
}

type fakePublisher struct {
	published []models.ProductRecord
}

func (p *fakePublisher) PublishDealDetected(_ context.Context, rec models.ProductRecord, _ string) error {
	p.published = append(p.published, rec)
	return nil
}

type fakeOutbox struct{}

func (fakeOutbox) Stats(context.Context) (int64, int64, error) { return 3, 1, nil }
