package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("apps", ResultFailure))
	RecordRun("apps", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("apps", ResultFailure)))

	before = testutil.ToFloat64(RunsTotal.WithLabelValues("apps", ResultSuccess))
	RecordRun("apps", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("apps", ResultSuccess)))
}

func TestRecordSkippedRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("clients", ResultSkipped))
	RecordSkippedRun("clients")
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("clients", ResultSkipped)))
}

func TestRecordEntry(t *testing.T) {
	tests := []struct {
		name   string
		flavor string
		kind   string
	}{
		{name: "ok app record", flavor: "apps", kind: "ok"},
		{name: "failed client record", flavor: "clients", kind: "key_creation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := RecordsTotal.WithLabelValues(tt.flavor, tt.kind)
			before := testutil.ToFloat64(counter)
			RecordEntry(tt.flavor, tt.kind)
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}

func TestRecordAuthAttempt(t *testing.T) {
	counter := AuthAttemptsTotal.WithLabelValues("keymanager", ResultFailure)
	before := testutil.ToFloat64(counter)
	RecordAuthAttempt("keymanager", errors.New("denied"))
	RecordAuthAttempt("keymanager", errors.New("denied"))
	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestObserveAPICall(t *testing.T) {
	ObserveAPICall("tokenvault", "api/keys/", "2xx", 15*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(APICallDuration), 1)
}
