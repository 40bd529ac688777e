package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordKernelDuration(t *testing.T) {
	RecordKernelDuration("forward", "float32", 10*time.Millisecond)
	RecordKernelDuration("forward", "float32", 20*time.Millisecond)
	RecordKernelDuration("backward", "float16", 5*time.Millisecond)
}

func TestRecordRowsAccumulates(t *testing.T) {
	before := testutil.ToFloat64(RowsProcessed.WithLabelValues("forward"))
	RecordRows("forward", 32)
	RecordRows("forward", 8)
	after := testutil.ToFloat64(RowsProcessed.WithLabelValues("forward"))
	if after-before != 40 {
		t.Errorf("rows counter moved by %v, want 40", after-before)
	}
}

func TestRecordNumericalInstabilityZeroIsSilent(t *testing.T) {
	before := testutil.ToFloat64(NumericalInstability.WithLabelValues("forward", "float32"))
	RecordNumericalInstability("forward", "float32", 0)
	after := testutil.ToFloat64(NumericalInstability.WithLabelValues("forward", "float32"))
	if after != before {
		t.Errorf("zero unstable rows moved the counter: %v -> %v", before, after)
	}
	RecordNumericalInstability("forward", "float32", 3)
	if got := testutil.ToFloat64(NumericalInstability.WithLabelValues("forward", "float32")); got != before+3 {
		t.Errorf("counter = %v, want %v", got, before+3)
	}
}

func TestRecordValidationError(t *testing.T) {
	before := testutil.ToFloat64(ValidationErrors.WithLabelValues("forward", "invalid_row_length"))
	RecordValidationError("forward", "invalid_row_length")
	after := testutil.ToFloat64(ValidationErrors.WithLabelValues("forward", "invalid_row_length"))
	if after != before+1 {
		t.Errorf("counter = %v, want %v", after, before+1)
	}
}

func TestRecordRowLength(t *testing.T) {
	RecordRowLength(8)
	RecordRowLength(2048)
	RecordRowLength(4096)
}

func TestStreamGaugeAndSyncWait(t *testing.T) {
	StreamQueueDepth.Set(3)
	if got := testutil.ToFloat64(StreamQueueDepth); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
	StreamQueueDepth.Set(0)
	RecordSyncWait(time.Microsecond)
}
