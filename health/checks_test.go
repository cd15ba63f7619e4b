package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestChecker_Endpoints(t *testing.T) {
	good := newComponent(t, "good", component.NopLogic{})
	require.NoError(t, good.Initialize())
	comps := map[string]*component.Component{"good": good}

	checker := NewChecker(nil,
		WithComponents(func() map[string]*component.Component { return comps }),
		WithDiskSpace(os.TempDir(), 1),
		WithMetricsRegistry(metric.NewMetricsRegistry()),
		WithSystemName("host1"))
	h := checker.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, LivePath).Code)
	assert.Equal(t, http.StatusOK, get(t, h, ReadyPath).Code)

	rec := get(t, h, StatusPath)
	require.Equal(t, http.StatusOK, rec.Code)
	var status Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "host1", status.Component)
	assert.True(t, status.Healthy)

	bad := newComponent(t, "bad", failingActivate{})
	require.NoError(t, bad.Initialize())
	require.Error(t, bad.Activate())
	comps["bad"] = bad

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, ReadyPath).Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, StatusPath).Code)
	assert.Equal(t, http.StatusOK, get(t, h, LivePath).Code, "components do not affect liveness")
}

func TestDiskSpaceCheck(t *testing.T) {
	assert.NoError(t, DiskSpaceCheck(os.TempDir(), 0)())
	assert.Error(t, DiskSpaceCheck(os.TempDir(), ^uint64(0))(), "nothing has that much free space")
	assert.Error(t, DiskSpaceCheck("/does/not/exist", 0)())
}

func TestChecker_GoroutineThreshold(t *testing.T) {
	h := NewChecker(nil, WithMaxGoroutines(0)).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, LivePath).Code)
}
