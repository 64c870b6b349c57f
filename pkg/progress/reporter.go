// Package progress implements the engine's side-channel notification
// contract: a stateful, non-thread-safe listener invoked inline by the copy
// engine after every committed (or dry-run-skipped) transaction.
package progress

import (
	"time"

	"github.com/arkdb/objcopy/pkg/objlog"
	"github.com/arkdb/objcopy/pkg/tid"
)

// Reporter receives per-transaction notifications from the copy engine. It
// is not safe for concurrent use — the engine is single-threaded and calls
// it inline, per the engine's own ordering guarantee (spec §5: "the
// progress callback for transaction n completes before transaction n+1
// begins").
type Reporter interface {
	// OnTransaction is invoked once per transaction copied (or, in a
	// dry run, once per transaction that would have been copied).
	OnTransaction(t tid.TID, recordCount int, byteSize int64, blobCount int)

	// LogSummary is invoked once, after the engine returns.
	LogSummary(txnCount, objCount, blobCount int)
}

// Options configures a LogReporter.
type Options struct {
	// Verbose forces every-transaction logging regardless of KnownTotal.
	Verbose bool

	// KnownTotal, when > 0, is the caller's estimate of how many
	// transactions this run will copy. Totals under 100 also trigger
	// every-transaction logging.
	KnownTotal int

	// LogInterval and LogCount bound how often a non-verbose, large run
	// logs progress: whichever threshold is hit first.
	LogInterval time.Duration
	LogCount    int
}

// LogReporter is the default Reporter: it writes tiered progress lines
// through the process-wide logger (pkg/objlog).
type LogReporter struct {
	opts Options

	start        time.Time
	lastLogged   time.Time
	sinceLogged  int
	seenFirst    bool
	totalBytes   int64
	totalRecords int
	totalBlobs   int
	totalTxns    int
}

// NewLogReporter returns a LogReporter with defaults filled in for any
// zero-valued tiering options.
func NewLogReporter(opts Options) *LogReporter {
	if opts.LogInterval <= 0 {
		opts.LogInterval = 10 * time.Second
	}
	if opts.LogCount <= 0 {
		opts.LogCount = 1000
	}
	return &LogReporter{opts: opts, start: time.Now()}
}

func (r *LogReporter) logsEveryTransaction() bool {
	return r.opts.Verbose || (r.opts.KnownTotal > 0 && r.opts.KnownTotal < 100)
}

// OnTransaction implements Reporter.
func (r *LogReporter) OnTransaction(t tid.TID, recordCount int, byteSize int64, blobCount int) {
	r.totalTxns++
	r.totalRecords += recordCount
	r.totalBytes += byteSize
	r.totalBlobs += blobCount
	r.sinceLogged++

	now := time.Now()
	shouldLog := !r.seenFirst ||
		r.logsEveryTransaction() ||
		now.Sub(r.lastLogged) >= r.opts.LogInterval ||
		r.sinceLogged >= r.opts.LogCount

	if !shouldLog {
		return
	}

	objlog.Logger.Info().
		Str("tid", t.String()).
		Int("records", recordCount).
		Int64("bytes", byteSize).
		Int("blobs", blobCount).
		Int("txn_total", r.totalTxns).
		Msg("copied transaction")

	r.seenFirst = true
	r.lastLogged = now
	r.sinceLogged = 0
}

// LogSummary implements Reporter.
func (r *LogReporter) LogSummary(txnCount, objCount, blobCount int) {
	elapsed := time.Since(r.start)
	var txnRate, byteRate float64
	if secs := elapsed.Seconds(); secs > 0 {
		txnRate = float64(txnCount) / secs
		byteRate = float64(r.totalBytes) / secs
	}

	objlog.Logger.Info().
		Int("txn_count", txnCount).
		Int("obj_count", objCount).
		Int("blob_count", blobCount).
		Int64("total_bytes", r.totalBytes).
		Dur("elapsed", elapsed).
		Float64("txn_per_sec", txnRate).
		Float64("bytes_per_sec", byteRate).
		Msg("copy complete")
}

// Multi fans a single OnTransaction/LogSummary call out to several
// reporters — used by the CLI to feed both the logging reporter and the
// optional Prometheus collector from one call site, without either
// listener replacing the other (spec §4.5's "passive second listener").
type Multi []Reporter

// OnTransaction implements Reporter.
func (m Multi) OnTransaction(t tid.TID, recordCount int, byteSize int64, blobCount int) {
	for _, r := range m {
		if r != nil {
			r.OnTransaction(t, recordCount, byteSize, blobCount)
		}
	}
}

// LogSummary implements Reporter.
func (m Multi) LogSummary(txnCount, objCount, blobCount int) {
	for _, r := range m {
		if r != nil {
			r.LogSummary(txnCount, objCount, blobCount)
		}
	}
}
