package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	storeerrors "github.com/objectfs/cloudtable/pkg/errors"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Namespace != "cloudtable" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "cloudtable")
		}
		if collector.registry == nil {
			t.Error("collector.registry is nil")
		}
	})

	t.Run("disabled collector records nothing", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false})
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}
		collector.RecordOperation("s3", "readFile", time.Millisecond, 10, nil)
		collector.RecordCompaction("s3", 5, 5, nil)
		if collector.Registry() != nil {
			t.Error("disabled collector should not expose a registry")
		}
		if len(collector.GetMetrics()) != 0 {
			t.Error("disabled collector should track nothing")
		}
	})
}

func TestNilCollectorIsNoop(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.RecordOperation("blob", "stat", time.Millisecond, 0, nil)
	c.RecordCompaction("blob", 1, 1, nil)
	c.ResetMetrics()
	if err := c.Observe("blob", "stat", 0, func() error { return nil }); err != nil {
		t.Errorf("Observe on nil collector returned %v", err)
	}
	if len(c.GetMetrics()) != 0 {
		t.Error("nil collector should have no metrics")
	}
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(DefaultConfig())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	c.RecordOperation("s3", "readFile", 2*time.Millisecond, 128, nil)
	c.RecordOperation("s3", "readFile", 4*time.Millisecond, 0, storeerrors.NotFound("s3", "readFile", "k"))

	if got := testutil.ToFloat64(c.operationCounter.WithLabelValues("s3", "readFile", "success")); got != 1 {
		t.Errorf("success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.errorCounter.WithLabelValues("s3", "readFile", "NOT_FOUND")); got != 1 {
		t.Errorf("NOT_FOUND count = %v, want 1", got)
	}

	snapshot := c.GetMetrics()["s3/readFile"]
	if snapshot.Count != 2 || snapshot.Errors != 1 || snapshot.TotalBytes != 128 {
		t.Errorf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.AvgDuration != 3*time.Millisecond {
		t.Errorf("AvgDuration = %v, want 3ms", snapshot.AvgDuration)
	}

	c.ResetMetrics()
	if len(c.GetMetrics()) != 0 {
		t.Error("ResetMetrics should clear internal tracking")
	}
}

func TestRecordOperationUnclassifiedError(t *testing.T) {
	t.Parallel()

	c, _ := NewCollector(DefaultConfig())
	c.RecordOperation("dropbox", "rename", time.Millisecond, 0, errors.New("socket closed"))

	if got := testutil.ToFloat64(c.errorCounter.WithLabelValues("dropbox", "rename", "TRANSIENT_OR_UNKNOWN")); got != 1 {
		t.Errorf("transient count = %v, want 1", got)
	}
}

func TestRecordCompaction(t *testing.T) {
	t.Parallel()

	c, _ := NewCollector(DefaultConfig())
	c.RecordCompaction("memory", 1200, 999, nil)
	c.RecordCompaction("memory", 201, 0, errors.New("list failed"))

	if got := testutil.ToFloat64(c.compactionDeletes.WithLabelValues("memory")); got != 999 {
		t.Errorf("deleted = %v, want 999", got)
	}
	if got := testutil.ToFloat64(c.compactionFailures.WithLabelValues("memory")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}

func TestObserve(t *testing.T) {
	t.Parallel()

	c, _ := NewCollector(DefaultConfig())
	want := errors.New("boom")
	if got := c.Observe("minio", "writeFile", 10, func() error { return want }); got != want {
		t.Errorf("Observe returned %v, want %v", got, want)
	}
	if c.GetMetrics()["minio/writeFile"].Errors != 1 {
		t.Error("Observe should record the failure")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	t.Parallel()

	c, _ := NewCollector(DefaultConfig())
	c.RecordOperation("blob", "stat", time.Millisecond, 0, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "cloudtable_adapter_operations_total") {
		t.Errorf("scrape output missing operations counter:\n%s", body)
	}
}

func TestDebugOperationsHandler(t *testing.T) {
	t.Parallel()

	c, _ := NewCollector(DefaultConfig())

	rec := httptest.NewRecorder()
	c.debugOperationsHandler(rec, httptest.NewRequest("GET", "/debug/operations", nil))
	if !strings.Contains(rec.Body.String(), "No operations recorded.") {
		t.Errorf("unexpected empty output %q", rec.Body.String())
	}

	c.RecordOperation("s3", "unlink", time.Millisecond, 0, nil)
	c.RecordOperation("s3", "writeFile", time.Millisecond, 2048, nil)
	rec = httptest.NewRecorder()
	c.debugOperationsHandler(rec, httptest.NewRequest("GET", "/debug/operations", nil))
	if !strings.Contains(rec.Body.String(), "s3/unlink") {
		t.Errorf("missing operation row in %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "2.0 KB") {
		t.Errorf("missing byte total in %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c.debugOperationsHandler(rec, httptest.NewRequest("GET", "/debug/operations?reset=true", nil))
	if !strings.Contains(rec.Body.String(), "s3/writeFile") {
		t.Errorf("reset request should still print the snapshot, got %q", rec.Body.String())
	}
	if len(c.GetMetrics()) != 0 {
		t.Error("reset request should clear internal tracking")
	}
}
