package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/maltedev/wb-deal-scraper/internal/browser"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSequentialPreservesOrderOnOneSession(t *testing.T) {
	env := &fakeEnv{fetch: func(u string) (string, error) {
		if u == detail(2) {
			return "", errors.New("navigation failed")
		}
		return detailHTML, nil
	}}
	ex := newTestExtractor(env, Options{})
	urls := []string{detail(1), detail(2), detail(3)}

	results, err := ex.RunSequential(context.Background(), urls, nil)

	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
	}
	assert.True(t, results[0].IsSuccess())
	assert.Equal(t, models.OutcomeWorkerCriticalError, results[1].Kind)
	assert.True(t, results[2].IsSuccess())
	assert.EqualValues(t, 1, env.created.Load())
	assert.EqualValues(t, 1, env.closed.Load())
	assert.Equal(t, urls, env.fetchedURLs())
	assert.LessOrEqual(t, env.peak.Load(), int32(1))
}

func TestRunSequentialStopsBetweenItemsOnCancel(t *testing.T) {
	env := &fakeEnv{fetch: func(string) (string, error) { return detailHTML, nil }}
	ex := newTestExtractor(env, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	urls := make([]string, 5)
	for i := range urls {
		urls[i] = detail(i + 1)
	}

	processed := 0
	results, err := ex.RunSequential(ctx, urls, func(models.PageOutcome) {
		processed++
		if processed == 2 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 2, "collected results are kept")
	assert.Len(t, env.fetchedURLs(), 2)
	assert.EqualValues(t, 1, env.closed.Load())
}

func TestRunSequentialSessionInitFailure(t *testing.T) {
	env := &fakeEnv{initErr: errNoChrome}
	ex := newTestExtractor(env, Options{})

	results, err := ex.RunSequential(context.Background(), []string{detail(1), detail(2)}, nil)

	assert.ErrorIs(t, err, browser.ErrSessionInit)
	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeDriverInitError, results[0].Kind)
	assert.Contains(t, results[0].Message, fmt.Sprint(errNoChrome))
}

func TestRunSequentialEmpty(t *testing.T) {
	env := &fakeEnv{}
	ex := newTestExtractor(env, Options{})

	results, err := ex.RunSequential(context.Background(), nil, nil)

	assert.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, env.created.Load())
}
