package download

import (
	"context"
	"sync"

	"github.com/desertthunder/playroom/internal/models"
)

// Status is the phase of one query in a batch.
type Status string

const (
	StatusStarted   Status = "started"
	StatusCached    Status = "cached"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Progress reports a status change for one query of a batch.
type Progress struct {
	Index    int
	Total    int
	Query    string
	Status   Status
	Artifact *models.Artifact
	Err      error
}

// Result is the outcome of one query of a batch.
type Result struct {
	Query    string
	Artifact *models.Artifact
	Err      error
}

// SubmitAll fetches every query concurrently and returns results in input order.
//
// Progress updates are sent without blocking; a slow or nil channel only loses updates.
func (d *Dispatcher) SubmitAll(ctx context.Context, queries []string, progress chan<- Progress) []Result {
	results := make([]Result, len(queries))
	total := len(queries)

	var wg sync.WaitGroup
	for i, q := range queries {
		results[i].Query = q

		h, err := d.Submit(q)
		if err != nil {
			results[i].Err = err
			sendProgress(progress, Progress{Index: i, Total: total, Query: q, Status: StatusFailed, Err: err})
			continue
		}

		status := StatusStarted
		if h.Cached {
			status = StatusCached
		}
		sendProgress(progress, Progress{Index: i, Total: total, Query: q, Status: status})

		wg.Add(1)
		go func(i int, h *Handle) {
			defer wg.Done()
			defer h.Release()

			artifact, err := h.Wait(ctx)
			results[i].Artifact, results[i].Err = artifact, err

			update := Progress{Index: i, Total: total, Query: h.Query, Status: StatusCompleted, Artifact: artifact}
			if err != nil {
				update.Status, update.Err = StatusFailed, err
			}
			sendProgress(progress, update)
		}(i, h)
	}
	wg.Wait()
	return results
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- Progress, update Progress) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
