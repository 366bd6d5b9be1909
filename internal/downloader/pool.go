package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"igstories/pkg/logger"
	"igstories/pkg/models"
)

// DownloadJob is one story to fetch and store
type DownloadJob struct {
	Handle string
	Item   models.ContentItem
}

// JobResult represents the result of a download job
type JobResult struct {
	Job      DownloadJob
	Path     string
	Skipped  bool
	Success  bool
	Error    error
	Duration time.Duration
	Size     int
}

// Fetcher downloads one media URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Payload, error)
}

// MediaStorage persists downloaded stories
type MediaStorage interface {
	IsDownloaded(handle string, item models.ContentItem) bool
	Save(handle string, item models.ContentItem, r io.Reader) (string, error)
}

// Pacer spaces requests to one host
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan DownloadJob
	resultQueue chan JobResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     Fetcher
	storage     MediaStorage
	pacer       Pacer
	logger      logger.Logger
}

// NewWorkerPool creates a new download worker pool bound to ctx. pacer may be nil.
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	fetcher Fetcher,
	storage MediaStorage,
	pacer Pacer,
	log logger.Logger,
) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan DownloadJob, numWorkers*2),
		resultQueue: make(chan JobResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		storage:     storage,
		pacer:       pacer,
		logger:      logger.OrDefault(log),
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, waits for the workers and closes Results.
// Call it once, after the last Submit.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Info("worker pool stopped")
}

// Cancel aborts in-flight downloads. Stop must still be called.
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// Submit adds a new download job to the queue
func (wp *WorkerPool) Submit(job DownloadJob) error {
	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("job submitted to queue", map[string]interface{}{
			"handle":     job.Handle,
			"content_id": job.Item.ID,
		})
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the result channel for consuming download results
func (wp *WorkerPool) Results() <-chan JobResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		var result JobResult
		if wp.ctx.Err() != nil {
			result = JobResult{Job: job, Error: wp.ctx.Err()}
		} else {
			result = wp.processJob(job, id)
		}

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			// the consumer may have stopped reading
			wp.logger.DebugWithFields("dropping result after cancellation", map[string]interface{}{
				"worker_id":  id,
				"content_id": job.Item.ID,
			})
		}
	}
}

// processJob handles a single download job
func (wp *WorkerPool) processJob(job DownloadJob, workerID int) JobResult {
	start := time.Now()
	result := JobResult{Job: job}
	fields := map[string]interface{}{
		"worker_id":  workerID,
		"handle":     job.Handle,
		"content_id": job.Item.ID,
	}

	if wp.storage.IsDownloaded(job.Handle, job.Item) {
		wp.logger.DebugWithFields("story already downloaded", fields)
		result.Success = true
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	if wp.pacer != nil {
		if err := wp.pacer.Wait(wp.ctx, job.Item.PrimaryURL); err != nil {
			result.Error = fmt.Errorf("pacing: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	}

	payload, err := wp.fetcher.Fetch(wp.ctx, job.Item.PrimaryURL)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)
		wp.logger.WithFields(fields).WithError(err).Error("worker failed to download story")
		return result
	}

	result.Size = len(payload.Data)

	path, err := wp.storage.Save(job.Handle, job.Item, bytes.NewReader(payload.Data))
	if err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		wp.logger.WithFields(fields).WithError(err).Error("worker failed to save story")
		return result
	}

	result.Path = path
	result.Success = true
	result.Duration = time.Since(start)
	logger.LogDownload(wp.logger, job.Handle, job.Item.ID, result.Size, nil)

	return result
}

// DownloadAll stores every item of handle through a pool of numWorkers and
// returns the results in completion order. onResult, when set, sees each
// result as it arrives.
func DownloadAll(ctx context.Context, numWorkers int, handle string, items []models.ContentItem, fetcher Fetcher, storage MediaStorage, pacer Pacer, log logger.Logger, onResult func(JobResult)) []JobResult {
	pool := NewWorkerPool(ctx, numWorkers, fetcher, storage, pacer, log)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, item := range items {
			if err := pool.Submit(DownloadJob{Handle: handle, Item: item}); err != nil {
				return
			}
		}
	}()

	results := make([]JobResult, 0, len(items))
	for r := range pool.Results() {
		if onResult != nil {
			onResult(r)
		}
		results = append(results, r)
	}
	return results
}
