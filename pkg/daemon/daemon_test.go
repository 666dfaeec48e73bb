package daemon

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/charlie0129/esoh/pkg/config"
	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/events"
	"github.com/charlie0129/esoh/pkg/hostbattery"
	"github.com/charlie0129/esoh/pkg/ocp"
	"github.com/charlie0129/esoh/pkg/parameters"
	"github.com/charlie0129/esoh/pkg/sweep"
	"github.com/charlie0129/esoh/pkg/types"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	initState(config.NewFileFromConfig(&config.RawFileConfig{}, filepath.Join(t.TempDir(), "esoh.json")))
	t.Cleanup(hub.Close)

	return setupRoutes()
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSolveDefaultParameterSet(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/solve", types.SolveRequest{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	id := w.Header().Get(requestIDHeader)
	require.NotEmpty(t, id)

	resp := decode[types.SolveResponse](t, w)
	require.Equal(t, id, resp.ID)
	require.Equal(t, parameters.Mohtat2020, resp.ParameterSet)
	require.InDelta(t, esoh.DefaultReferenceTemperature, resp.Temperature, 1e-12)
	require.InDelta(t, 0.8334, resp.Outputs.X100, 1e-3)
	require.InDelta(t, 0.0335, resp.Outputs.Y100, 1e-3)
	require.InDelta(t, 4.9692, resp.Outputs.CellCapacity, 1e-3)
	require.Less(t, resp.Residuals.Max(), 1e-8)
}

func TestSolveKeepsCallerRequestID(t *testing.T) {
	router := newTestRouter(t)

	const id = "5f1c2f0e-3d3a-4f55-9c8e-0f6a2f0c8a11"
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set(requestIDHeader, id)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, id, w.Header().Get(requestIDHeader))
}

func TestSolveErrors(t *testing.T) {
	mohtat, err := parameters.Get(parameters.Mohtat2020)
	require.NoError(t, err)

	withInputs := func(mod func(*esoh.Inputs)) *esoh.Inputs {
		in := mohtat.Inputs
		mod(&in)
		return &in
	}

	tests := []struct {
		name     string
		req      types.SolveRequest
		status   int
		kind     string
		wantStep esoh.Step
	}{
		{
			name:   "minimum above maximum",
			req:    types.SolveRequest{Inputs: withInputs(func(in *esoh.Inputs) { in.MinimumVoltage = 4.3 })},
			status: http.StatusBadRequest,
			kind:   types.ErrorKindInvalidInput,
		},
		{
			name:   "negative temperature",
			req:    types.SolveRequest{Temperature: -1},
			status: http.StatusBadRequest,
			kind:   types.ErrorKindInvalidInput,
		},
		{
			name:   "unknown parameter set",
			req:    types.SolveRequest{ParameterSet: "nope"},
			status: http.StatusNotFound,
			kind:   types.ErrorKindNotFound,
		},
		{
			name:   "unknown curve",
			req:    types.SolveRequest{NegativeOCP: "nope"},
			status: http.StatusNotFound,
			kind:   types.ErrorKindNotFound,
		},
		{
			name:   "swapped curves",
			req:    types.SolveRequest{NegativeOCP: ocp.NMCMohtat2020, PositiveOCP: ocp.GraphiteMohtat2020},
			status: http.StatusBadRequest,
			kind:   types.ErrorKindInvalidInput,
		},
		{
			name:     "unreachable maximum voltage",
			req:      types.SolveRequest{Inputs: withInputs(func(in *esoh.Inputs) { in.MaximumVoltage = 5.0 })},
			status:   http.StatusUnprocessableEntity,
			kind:     types.ErrorKindInfeasible,
			wantStep: esoh.StepMaximumVoltage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t)

			w := do(t, router, http.MethodPost, "/solve", tt.req)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			resp := decode[types.ErrorResponse](t, w)
			require.Equal(t, tt.kind, resp.Kind)
			require.NotEmpty(t, resp.Error)
			require.Equal(t, string(tt.wantStep), resp.Step)
		})
	}
}

func TestSolveDidNotConverge(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPut, "/solver", esoh.Options{Tolerance: 1e-14, MaxIterations: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, 1, conf.MaxIterations())

	w = do(t, router, http.MethodPost, "/solve", types.SolveRequest{})
	require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
	require.Equal(t, types.ErrorKindNotConverged, decode[types.ErrorResponse](t, w).Kind)
}

func TestSetSolverOptionsValidation(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPut, "/solver", esoh.Options{InitialX100: 1.5})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPut, "/solver", esoh.Options{MaxIterations: -1})
	require.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, esoh.DefaultMaxIterations, conf.MaxIterations())
}

func TestSweep(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/sweep", types.SweepRequest{
		Grid: sweep.Grid{LLI: []float64{0, 0.1, 0.99}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[types.SweepResponse](t, w)
	require.Equal(t, parameters.Mohtat2020, resp.ParameterSet)
	require.Len(t, resp.Points, 3)
	require.Equal(t, 1, resp.Failed)
	require.NotNil(t, resp.Points[0].Outputs)
	require.NotNil(t, resp.Points[1].Outputs)
	require.Less(t, resp.Points[1].Outputs.CellCapacity, resp.Points[0].Outputs.CellCapacity)
	require.NotEmpty(t, resp.Points[2].Error)

	w = do(t, router, http.MethodPost, "/sweep", types.SweepRequest{Grid: sweep.Grid{LLI: []float64{1.2}}})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/sweep", types.SweepRequest{Grid: sweep.Grid{
		LLI:         make([]float64, 101),
		LAMNegative: make([]float64, 100),
	}})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.Equal(t, types.ErrorKindInvalidInput, decode[types.ErrorResponse](t, w).Kind)
}

func TestRequestBodyLimit(t *testing.T) {
	router := newTestRouter(t)

	body := `{"grid":{"lli":[0` + strings.Repeat(",0", maxRequestBody/2) + `]}}`
	req := httptest.NewRequest(http.MethodPost, "/sweep", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, testutil.ToFloat64(mtr.SweepPointsTotal))
}

func TestParameterSets(t *testing.T) {
	router := newTestRouter(t)

	cell, err := parameters.Get(parameters.Mohtat2020)
	require.NoError(t, err)
	cell.Name = ""
	cell.Description = "aged"
	cell.Inputs.PositiveCapacity = 5.5

	w := do(t, router, http.MethodPut, "/parameter-sets/aged", cell)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/parameter-sets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sets := decode[[]types.ParameterSetInfo](t, w)
	require.Len(t, sets, 2)
	require.Equal(t, parameters.Mohtat2020, sets[0].Name)
	require.True(t, sets[0].Builtin)
	require.Equal(t, types.ParameterSetInfo{Name: "aged", Description: "aged"}, sets[1])

	w = do(t, router, http.MethodGet, "/parameter-sets/aged", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.InDelta(t, 5.5, decode[parameters.Set](t, w).Inputs.PositiveCapacity, 1e-12)

	w = do(t, router, http.MethodPost, "/solve", types.SolveRequest{ParameterSet: "aged"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPut, "/default-parameter-set", "aged")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "aged", conf.DefaultParameterSet())

	w = do(t, router, http.MethodPut, "/default-parameter-set", "nope")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodDelete, "/parameter-sets/aged", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodDelete, "/parameter-sets/aged", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodDelete, "/parameter-sets/"+parameters.Mohtat2020, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutParameterSetInvalid(t *testing.T) {
	router := newTestRouter(t)

	cell, err := parameters.Get(parameters.Mohtat2020)
	require.NoError(t, err)

	w := do(t, router, http.MethodPut, "/parameter-sets/other", cell)
	require.Equal(t, http.StatusBadRequest, w.Code)

	cell.Name = "broken"
	cell.Inputs.NegativeCapacity = -1
	w = do(t, router, http.MethodPut, "/parameter-sets/broken", cell)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, conf.Cells())
}

func TestOCPCurves(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/ocp-curves", nil)
	require.Equal(t, http.StatusOK, w.Code)
	curves := decode[[]types.OCPCurveInfo](t, w)
	require.Len(t, curves, len(ocp.Names()))
	for _, cv := range curves {
		require.Empty(t, cv.Samples)
	}

	w = do(t, router, http.MethodGet, "/ocp-curves/"+ocp.GraphiteMohtat2020+"?points=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[types.OCPCurveInfo](t, w)
	require.Equal(t, ocp.Negative, info.Electrode)
	require.Len(t, info.Samples, 5)

	w = do(t, router, http.MethodGet, "/ocp-curves/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/ocp-curves?points=-1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/ocp-curves/"+ocp.GraphiteMohtat2020+"?points="+strconv.Itoa(ocp.MaxTablePoints), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[types.OCPCurveInfo](t, w).Samples, ocp.MaxTablePoints)

	for _, path := range []string{
		"/ocp-curves/" + ocp.GraphiteMohtat2020 + "?points=1000000000",
		"/ocp-curves?points=" + strconv.Itoa(ocp.MaxTablePoints+1),
	} {
		w = do(t, router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, path)
		require.Equal(t, types.ErrorKindInvalidInput, decode[types.ErrorResponse](t, w).Kind)
	}
}

func TestConfigAndVersion(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw := decode[config.RawFileConfig](t, w)
	require.NotNil(t, raw.Tolerance)
	require.InDelta(t, esoh.DefaultTolerance, *raw.Tolerance, 1e-20)

	w = do(t, router, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.HasPrefix(w.Body.String(), `"`))
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t)
	limiter = newClientRateLimiter(rate.Limit(0.001), 2)

	for i := 0; i < 2; i++ {
		w := do(t, router, http.MethodGet, "/version", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, router, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, types.ErrorKindRateLimited, decode[types.ErrorResponse](t, w).Kind)

	// Metrics are never limited.
	w = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "esoh_rate_limited_requests_total 1")
}

func TestMetricsCountSolves(t *testing.T) {
	router := newTestRouter(t)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/solve", types.SolveRequest{}).Code)
	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/solve", types.SolveRequest{ParameterSet: "nope"}).Code)

	w := do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `esoh_solves_total{result="ok"} 1`)
	require.Contains(t, body, `esoh_solves_total{result="error"} 1`)
	require.Contains(t, body, "esoh_solve_duration_seconds_count 2")
}

func TestHealthSnapshot(t *testing.T) {
	orig := readHostBattery
	defer func() { readHostBattery = orig }()

	router := newTestRouter(t)

	readHostBattery = func() (hostbattery.Snapshot, error) {
		return hostbattery.Snapshot{Time: time.Now(), DesignCapacity: 50000, FullCapacity: 45000, Retention: 0.9}, nil
	}

	w := do(t, router, http.MethodPost, "/health-history", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.NoError(t, takeHealthSnapshot())

	w = do(t, router, http.MethodGet, "/health-history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snaps := decode[[]hostbattery.Snapshot](t, w)
	require.Len(t, snaps, 2)
	require.InDelta(t, 0.9, snaps[1].Retention, 1e-12)

	readHostBattery = func() (hostbattery.Snapshot, error) {
		return hostbattery.Snapshot{}, hostbattery.ErrNoBattery
	}
	w = do(t, router, http.MethodPost, "/health-history", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, types.ErrorKindNoBattery, decode[types.ErrorResponse](t, w).Kind)
}

func TestSetHealthSchedule(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPut, "/health-schedule", "@every 2h")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "@every 2h", conf.HealthSchedule())

	w = do(t, router, http.MethodGet, "/health-schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[types.HealthScheduleStatus](t, w)
	require.Equal(t, "@every 2h", st.Schedule)
	require.NotNil(t, st.NextRun)
	require.False(t, st.Postponed)

	w = do(t, router, http.MethodPut, "/health-schedule", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, scheduler.Status().NextRun.IsZero())

	w = do(t, router, http.MethodGet, "/health-schedule", nil)
	st = decode[types.HealthScheduleStatus](t, w)
	require.Empty(t, st.Schedule)
	require.Nil(t, st.NextRun)

	w = do(t, router, http.MethodPut, "/health-schedule", "whenever")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "", conf.HealthSchedule())
}

func TestSkipAndPostponeHealthSnapshot(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/health-schedule/skip", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, types.ErrorKindNoSchedule, decode[types.ErrorResponse](t, w).Kind)

	w = do(t, router, http.MethodPost, "/health-schedule/postpone", types.PostponeRequest{Duration: "10m"})
	require.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, applyHealthSchedule("@every 1h"))
	orig := scheduler.Status().NextRun

	w = do(t, router, http.MethodPost, "/health-schedule/postpone", types.PostponeRequest{Duration: "10m"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	st := decode[types.HealthScheduleStatus](t, w)
	require.True(t, st.Postponed)
	require.NotNil(t, st.NextRun)
	require.Equal(t, 10*time.Minute, st.NextRun.Sub(orig))

	for _, d := range []string{"2h", "-5m", "soon", ""} {
		w = do(t, router, http.MethodPost, "/health-schedule/postpone", types.PostponeRequest{Duration: d})
		require.Equal(t, http.StatusBadRequest, w.Code, d)
		require.Equal(t, types.ErrorKindInvalidInput, decode[types.ErrorResponse](t, w).Kind)
	}

	w = do(t, router, http.MethodPost, "/health-schedule/skip", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	st = decode[types.HealthScheduleStatus](t, w)
	require.False(t, st.Postponed)
	require.Equal(t, time.Hour, st.NextRun.Sub(orig))
}

func TestHealthSchedulerWiring(t *testing.T) {
	orig := readHostBattery
	defer func() { readHostBattery = orig }()

	newTestRouter(t)

	require.NotNil(t, scheduler.PreCheck)
	require.Equal(t, healthSnapshotLead, scheduler.Lead)

	readHostBattery = func() (hostbattery.Snapshot, error) {
		return hostbattery.Snapshot{}, hostbattery.ErrNoBattery
	}
	require.ErrorIs(t, scheduler.PreCheck(), hostbattery.ErrNoBattery)

	readHostBattery = func() (hostbattery.Snapshot, error) {
		return hostbattery.Snapshot{Time: time.Now(), DesignCapacity: 50000, FullCapacity: 40000, Retention: 0.8}, nil
	}
	require.NoError(t, scheduler.PreCheck())

	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	at := time.Now().Add(healthSnapshotLead)
	scheduler.OnUpcoming(at)

	ev := <-ch
	require.Equal(t, events.HealthSnapshotUpcoming, ev.Name)
	payload, err := events.DecodeAs[events.HealthSnapshotUpcomingEvent](ev)
	require.NoError(t, err)
	require.True(t, payload.At.Equal(at))

	require.NoError(t, scheduler.Task())
	require.Len(t, history.List(), 1)
	ev = <-ch
	require.Equal(t, events.HealthSnapshot, ev.Name)
}

func TestEventStream(t *testing.T) {
	router := newTestRouter(t)

	srv := httptest.NewServer(router)
	defer srv.Close()
	// Runs before srv.Close so the stream handler can return.
	defer hub.Close()

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	solveResp, err := http.Post(srv.URL+"/solve", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	require.NoError(t, solveResp.Body.Close())
	require.Equal(t, http.StatusOK, solveResp.StatusCode)

	var ev events.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			ev.Name = strings.TrimSpace(name)
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			ev.Data = json.RawMessage(strings.TrimSpace(data))
			break
		}
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, events.SolveCompleted, ev.Name)

	payload, err := events.DecodeAs[events.SolveCompletedEvent](ev)
	require.NoError(t, err)
	require.Equal(t, solveResp.Header.Get(requestIDHeader), payload.RequestID)
	require.InDelta(t, 4.9692, payload.CellCapacity, 1e-3)
}
