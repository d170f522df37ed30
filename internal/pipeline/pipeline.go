// Package pipeline implements the three-role compression pipeline spec.md
// §4.5 describes: a producer (the writer façade) submits batches tagged
// with a monotonically increasing job index, N compressor workers pack and
// compress them in parallel, and a single serializer goroutine reassembles
// the results in job-index order and feeds them to the block appender.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"golang.org/x/sync/errgroup"

	"github.com/copperloop/zss/internal/appender"
	"github.com/copperloop/zss/internal/block"
	"github.com/copperloop/zss/internal/codec"
	"github.com/copperloop/zss/internal/zsserr"
)

// Stats optionally records per-worker compression latency. Nil is valid and
// disables recording. Unlike appender.Stats, recordLatency is called
// concurrently by every compressor worker, so it takes its own mutex rather
// than relying on a single-goroutine caller.
type Stats struct {
	mu                       sync.Mutex
	CompressLatencyHistogram *hdrhistogram.Histogram
}

func (s *Stats) recordLatency(d time.Duration) {
	if s == nil || s.CompressLatencyHistogram == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompressLatencyHistogram.RecordValue(d.Nanoseconds())
}

// Job is one producer-submitted batch of pre-sorted records.
type Job struct {
	Index   int
	Records [][]byte
}

// compressedJob is what a compressor worker hands to the serializer: a
// compressed data-block payload plus the first/last record of the batch it
// came from, still tagged with the job index so the serializer can
// reassemble strict order.
type compressedJob struct {
	index      int
	firstKey   []byte
	lastKey    []byte
	compressed []byte
}

// Pipeline owns the worker pool and the single serializer goroutine. The
// zero value is not usable; construct with New.
type Pipeline struct {
	ctx    context.Context
	g      *errgroup.Group
	jobs   chan Job
	merged chan compressedJob

	mu     sync.Mutex
	err    error
	root   block.Handle
	rootOK bool
}

// New starts workers compressor goroutines and one serializer goroutine,
// all bound to an errgroup.WithContext(ctx). a is the appender the
// serializer feeds in job-index order; c/params are the codec the workers
// compress with; hint sizes each worker's packing buffer. stats may be nil.
func New(ctx context.Context, a *appender.Appender, c *codec.Codec, params codec.Params, workers int, queueDepth int, hint int, stats *Stats) *Pipeline {
	g, gctx := errgroup.WithContext(ctx)

	p := &Pipeline{
		ctx:    gctx,
		g:      g,
		jobs:   make(chan Job, queueDepth),
		merged: make(chan compressedJob, queueDepth),
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer wg.Done()
			err := compressWorker(gctx, p.jobs, p.merged, c, params, hint, stats)
			p.recordErr(err)
			return err
		})
	}
	g.Go(func() error {
		wg.Wait()
		close(p.merged)
		return nil
	})

	g.Go(func() error {
		err := p.serialize(a)
		p.recordErr(err)
		return err
	})

	return p
}

// recordErr saves the first non-nil, non-context-cancellation error any
// goroutine observes, so Err() can surface the real Kind to the producer
// immediately rather than the generic context.Canceled that errgroup's
// shared context produces for every other goroutine once the first one
// fails (spec.md §4.5/§8's "Pipeline liveness": the producer must see the
// real failure within a bounded number of steps, not an opaque timeout).
func (p *Pipeline) recordErr(err error) {
	if err == nil || err == context.Canceled || err == context.DeadlineExceeded {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

// compressWorker pulls batches off jobs until it's closed or the context is
// cancelled, packing and compressing each independently (workers share no
// mutable state, so results complete out of order by design).
func compressWorker(ctx context.Context, jobs <-chan Job, merged chan<- compressedJob, c *codec.Codec, params codec.Params, hint int, stats *Stats) error {
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			if len(job.Records) == 0 {
				continue
			}
			logical, err := block.PackData(job.Records, hint)
			if err != nil {
				return err
			}
			start := time.Now()
			compressed, err := block.Compress(c, params, logical)
			stats.recordLatency(time.Since(start))
			if err != nil {
				return err
			}
			cj := compressedJob{
				index:      job.Index,
				firstKey:   job.Records[0],
				lastKey:    job.Records[len(job.Records)-1],
				compressed: compressed,
			}
			select {
			case merged <- cj:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// serialize consumes compressedJob values as they arrive, buffers
// out-of-order arrivals in a small map keyed by job index, and delivers
// them to the appender in strict index order (mirroring _write_worker's
// pending_jobs reorder buffer). Once merged is closed, it asserts the
// reorder buffer is empty and calls Finish on the appender.
func (p *Pipeline) serialize(a *appender.Appender) error {
	pending := map[int]compressedJob{}
	want := 0

	for cj := range p.merged {
		pending[cj.index] = cj
		for {
			next, ok := pending[want]
			if !ok {
				break
			}
			delete(pending, want)
			want++
			if err := a.WriteCompressedDataBlock(next.firstKey, next.lastKey, next.compressed); err != nil {
				return err
			}
		}
	}

	if len(pending) != 0 {
		return zsserr.NewError(zsserr.KindFraming, "zss: pipeline: %d job(s) never arrived in order", len(pending))
	}

	root, err := a.Finish()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.root = root
	p.rootOK = true
	p.mu.Unlock()
	return nil
}

// Submit hands one batch to the compressor pool, tagged with index.
// index must be assigned in strictly increasing order by the caller
// (typically a simple counter), starting at 0.
func (p *Pipeline) Submit(index int, records [][]byte) error {
	select {
	case p.jobs <- Job{Index: index, Records: records}:
		return nil
	case <-p.ctx.Done():
		return p.Err()
	}
}

// Err returns the first error any worker has produced so far, without
// blocking. spec.md §4.5 requires producers to be able to poll pipeline
// health at every ingest step so they never block indefinitely feeding a
// queue whose consumer has died; errgroup itself exposes no non-blocking
// peek, so Close/serialize also mirror the first error into p.err under
// p.mu for this method to read.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	default:
		return nil
	}
}

// Close shuts the pipeline down: closes the jobs channel (the compressor
// workers' sentinel-equivalent), waits for every goroutine to exit, and
// returns the root block handle the serializer produced on a clean finish.
func (p *Pipeline) Close() (block.Handle, error) {
	close(p.jobs)
	err := p.g.Wait()
	if err != nil {
		p.mu.Lock()
		if p.err == nil {
			p.err = err
		}
		p.mu.Unlock()
		return block.Handle{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.rootOK {
		return block.Handle{}, zsserr.NewError(zsserr.KindEmpty, "zss: pipeline closed without producing a root")
	}
	return p.root, nil
}
