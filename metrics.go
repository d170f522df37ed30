package zss

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copperloop/zss/internal/appender"
	"github.com/copperloop/zss/internal/pipeline"
)

// Stats collects optional write-time observability. A nil *Stats (or a
// Stats with nil fields) disables the corresponding recording; none of
// this affects the on-disk format.
type Stats struct {
	// BlockSizeHistogram tracks the on-disk size of every block written,
	// across all levels, in bytes. 1 to 64MiB range with 3 significant
	// figures is enough resolution for block-size accounting without the
	// memory cost of recording every sample.
	BlockSizeHistogram *hdrhistogram.Histogram

	// CompressLatencyHistogram tracks how long each compressor worker spent
	// in a single block.Compress call, in nanoseconds.
	CompressLatencyHistogram *hdrhistogram.Histogram

	// RecordsWritten counts every record handed to the writer, whether via
	// AddDataBlock or AddFileContents.
	RecordsWritten prometheus.Counter

	// BlocksWritten counts every framed block (data and index) written.
	BlocksWritten prometheus.Counter

	// ContentFingerprint is a running xxhash.Sum64 over every record's
	// bytes, in ingestion order. It's an operational convenience for
	// comparing two writer runs over the same logical input; it is never a
	// substitute for the per-block CRC-32C integrity check spec.md §3.3
	// mandates, and plays no part in validation.
	ContentFingerprint *xxhash.Digest
}

// NewStats builds a Stats with a freshly allocated histogram, digest, and
// counters, suitable for registering with a caller's prometheus.Registry via
// Register.
func NewStats() *Stats {
	return &Stats{
		BlockSizeHistogram:       hdrhistogram.New(1, 64<<20, 3),
		CompressLatencyHistogram: hdrhistogram.New(1, int64(10*time.Second), 3),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zss_writer_records_written_total",
			Help: "Records handed to a zss writer.",
		}),
		BlocksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zss_writer_blocks_written_total",
			Help: "Blocks (data and index) written by a zss writer.",
		}),
		ContentFingerprint: xxhash.New(),
	}
}

// Register registers RecordsWritten and BlocksWritten with r. Safe to skip
// entirely for callers that only want the histograms and fingerprint.
func (s *Stats) Register(r prometheus.Registerer) error {
	if s == nil {
		return nil
	}
	for _, c := range []prometheus.Collector{s.RecordsWritten, s.BlocksWritten} {
		if c == nil {
			continue
		}
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// recordRecords counts records and folds their bytes into the running
// content fingerprint. The writer calls this for every batch it accepts,
// in ingestion order, so the fingerprint is deterministic regardless of how
// the pipeline later reorders compression work.
func (s *Stats) recordRecords(records [][]byte) {
	if s == nil {
		return
	}
	if s.RecordsWritten != nil {
		s.RecordsWritten.Add(float64(len(records)))
	}
	if s.ContentFingerprint != nil {
		for _, rec := range records {
			_, _ = s.ContentFingerprint.Write(rec)
		}
	}
}

func (s *Stats) appenderStats() *appender.Stats {
	if s == nil {
		return nil
	}
	return &appender.Stats{BlockSizeHistogram: s.BlockSizeHistogram, BlocksWritten: s.BlocksWritten}
}

func (s *Stats) pipelineStats() *pipeline.Stats {
	if s == nil || s.CompressLatencyHistogram == nil {
		return nil
	}
	return &pipeline.Stats{CompressLatencyHistogram: s.CompressLatencyHistogram}
}
