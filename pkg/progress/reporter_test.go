package progress

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkdb/objcopy/pkg/tid"
)

func TestLogReporter_SmallKnownTotalLogsEveryTransaction(t *testing.T) {
	r := NewLogReporter(Options{KnownTotal: 3})
	assert.True(t, r.logsEveryTransaction())

	r.OnTransaction(tid.FromUint64(1), 2, 10, 0)
	assert.Equal(t, 1, r.totalTxns)
	assert.Equal(t, int64(10), r.totalBytes)
}

func TestLogReporter_LargeRunTiersByIntervalAndCount(t *testing.T) {
	r := NewLogReporter(Options{KnownTotal: 1_000_000, LogCount: 2, LogInterval: time.Hour})

	r.OnTransaction(tid.FromUint64(1), 1, 1, 0) // first: always logged
	assert.True(t, r.seenFirst)
	loggedAfterFirst := r.sinceLogged

	r.OnTransaction(tid.FromUint64(2), 1, 1, 0)
	assert.Equal(t, loggedAfterFirst+1, r.sinceLogged, "second transaction shouldn't log yet")

	r.OnTransaction(tid.FromUint64(3), 1, 1, 0) // sinceLogged reaches LogCount
	assert.Equal(t, 0, r.sinceLogged, "hitting LogCount resets the counter")
}

func TestLogReporter_LogSummaryDoesNotPanic(t *testing.T) {
	r := NewLogReporter(Options{Verbose: true})
	r.OnTransaction(tid.FromUint64(1), 5, 500, 1)
	r.LogSummary(1, 5, 1)
	// LogSummary only writes to objlog; nothing to assert beyond "doesn't panic".
}

func TestMulti_FansOutToAllReporters(t *testing.T) {
	a := NewLogReporter(Options{Verbose: true})
	b := NewLogReporter(Options{Verbose: true})
	m := Multi{a, b, nil}

	m.OnTransaction(tid.FromUint64(1), 1, 1, 0)
	assert.Equal(t, 1, a.totalTxns)
	assert.Equal(t, 1, b.totalTxns)

	m.LogSummary(1, 1, 0)
}

func TestProgressCollector_ExposesCounters(t *testing.T) {
	c := NewProgressCollector()
	c.OnTransaction(tid.FromUint64(1), 3, 100, 1)
	c.OnTransaction(tid.FromUint64(2), 2, 50, 0)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	require.Contains(t, body, "objcopy_transactions_copied_total 2")
	assert.True(t, strings.Contains(body, "objcopy_objects_copied_total 5"))
	assert.True(t, strings.Contains(body, "objcopy_blobs_copied_total 1"))
	assert.True(t, strings.Contains(body, "objcopy_bytes_copied_total 150"))
}
