package observability

import (
	"testing"
	"time"

	"github.com/danmuck/rdmsession/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("consumer-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordFrame(DirectionOut, "data")
	RecordBytes(DirectionIn, 0)
	RecordQueuedWrite()
	RecordDictionaryPart("RWFFld", DirectionIn)
	ObserveRTT(3 * time.Millisecond)

	before := testutil.ToFloat64(streamRejects.WithLabelValues("Dictionary", "TooManyItems"))
	RecordReject("Dictionary", "TooManyItems")
	after := testutil.ToFloat64(streamRejects.WithLabelValues("Dictionary", "TooManyItems"))
	if after != before+1 {
		t.Fatalf("reject counter: before=%v after=%v", before, after)
	}

	beforeRec := testutil.ToFloat64(transportReconnects.WithLabelValues("read"))
	RecordRecovery("read")
	if got := testutil.ToFloat64(transportReconnects.WithLabelValues("read")); got != beforeRec+1 {
		t.Fatalf("recovery counter = %v", got)
	}
}
