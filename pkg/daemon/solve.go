package daemon

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/events"
	"github.com/charlie0129/esoh/pkg/metrics"
	"github.com/charlie0129/esoh/pkg/ocp"
	"github.com/charlie0129/esoh/pkg/parameters"
	"github.com/charlie0129/esoh/pkg/sweep"
	"github.com/charlie0129/esoh/pkg/types"
)

// solveErrorStatus maps an error to an HTTP status and error kind.
func solveErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, esoh.ErrInvalidInput):
		return http.StatusBadRequest, types.ErrorKindInvalidInput
	case errors.Is(err, parameters.ErrNotFound), errors.Is(err, ocp.ErrNotFound):
		return http.StatusNotFound, types.ErrorKindNotFound
	case errors.Is(err, esoh.ErrInfeasibleVoltageWindow):
		return http.StatusUnprocessableEntity, types.ErrorKindInfeasible
	case errors.Is(err, esoh.ErrSolverDidNotConverge):
		return http.StatusInternalServerError, types.ErrorKindNotConverged
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, types.ErrorKindInternal
	default:
		return http.StatusInternalServerError, types.ErrorKindInternal
	}
}

func metricsResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, esoh.ErrInvalidInput):
		return metrics.ResultInvalidInput
	case errors.Is(err, esoh.ErrInfeasibleVoltageWindow):
		return metrics.ResultInfeasible
	case errors.Is(err, esoh.ErrSolverDidNotConverge):
		return metrics.ResultNotConverged
	default:
		return metrics.ResultUnknownFailure
	}
}

func abortWithSolveError(c *gin.Context, err error) {
	status, kind := solveErrorStatus(err)
	resp := types.ErrorResponse{Error: err.Error(), Kind: kind}

	var se *esoh.SolveError
	if errors.As(err, &se) {
		resp.Step = string(se.Step)
	}

	c.IndentedJSON(status, resp)
	_ = c.AbortWithError(status, err)
}

// resolveSolveRequest builds the parameter set a solve request refers to.
func resolveSolveRequest(req types.SolveRequest) (parameters.Set, float64, error) {
	set, err := conf.LookupCell(req.ParameterSet)
	if err != nil {
		return parameters.Set{}, 0, err
	}

	if req.Inputs != nil {
		set.Inputs = *req.Inputs
	}
	if req.NegativeOCP != "" {
		set.NegativeOCP = req.NegativeOCP
	}
	if req.PositiveOCP != "" {
		set.PositiveOCP = req.PositiveOCP
	}

	temperature := set.Temperature()
	if req.Temperature != 0 {
		if math.IsNaN(req.Temperature) || math.IsInf(req.Temperature, 0) || req.Temperature < 0 {
			return parameters.Set{}, 0, pkgerrors.Wrapf(esoh.ErrInvalidInput, "temperature must be positive, got %g", req.Temperature)
		}
		temperature = req.Temperature
	}

	return set, temperature, nil
}

func solve(c *gin.Context) {
	start := time.Now()
	id := c.GetString(requestIDKey)

	var req types.SolveRequest
	if err := c.BindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
		return
	}

	out, resp, err := doSolve(c.Request.Context(), id, req)
	mtr.ObserveSolve(start, metricsResult(err))

	ev := events.SolveCompletedEvent{
		RequestID:    id,
		ParameterSet: resp.ParameterSet,
		Ts:           time.Now().Unix(),
	}
	if err != nil {
		ev.Error = err.Error()
		hub.Publish(events.SolveCompleted, ev)
		abortWithSolveError(c, err)
		return
	}
	ev.CellCapacity = out.CellCapacity
	hub.Publish(events.SolveCompleted, ev)

	c.IndentedJSON(http.StatusOK, resp)
}

func doSolve(ctx context.Context, id string, req types.SolveRequest) (esoh.Outputs, types.SolveResponse, error) {
	resp := types.SolveResponse{ID: id, ParameterSet: req.ParameterSet}

	set, temperature, err := resolveSolveRequest(req)
	if err != nil {
		return esoh.Outputs{}, resp, err
	}
	resp.ParameterSet = set.Name

	pair, err := set.OCP()
	if err != nil {
		return esoh.Outputs{}, resp, err
	}

	solver := esoh.NewSolver(conf.SolverOptions())
	out, err := solver.Solve(ctx, set.Inputs, pair, temperature)
	if err != nil {
		logrus.WithFields(set.Inputs.LogrusFields()).WithField("requestId", id).Debugf("solve failed: %v", err)
		return esoh.Outputs{}, resp, err
	}

	resp.Temperature = temperature
	resp.Inputs = set.Inputs
	resp.Outputs = out
	resp.Residuals = esoh.ComputeResiduals(set.Inputs, pair, temperature, out)

	return out, resp, nil
}

func runSweep(c *gin.Context) {
	start := time.Now()
	id := c.GetString(requestIDKey)

	var req types.SweepRequest
	if err := c.BindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
		return
	}

	set, err := conf.LookupCell(req.ParameterSet)
	if err != nil {
		abortWithSolveError(c, err)
		return
	}

	solver := esoh.NewSolver(conf.SolverOptions())
	points, err := sweep.Run(c.Request.Context(), solver, set, req.Grid)
	if err != nil {
		abortWithSolveError(c, err)
		return
	}
	mtr.ObserveSweep(start, len(points))

	failed := 0
	for _, p := range points {
		if p.Error != "" {
			failed++
		}
	}

	hub.Publish(events.SweepCompleted, events.SweepCompletedEvent{
		RequestID:    id,
		ParameterSet: set.Name,
		Points:       len(points),
		Failed:       failed,
		Ts:           time.Now().Unix(),
	})

	logrus.WithFields(logrus.Fields{
		"requestId":    id,
		"parameterSet": set.Name,
		"points":       len(points),
		"failed":       failed,
	}).Info("sweep completed")

	c.IndentedJSON(http.StatusOK, types.SweepResponse{
		ID:           id,
		ParameterSet: set.Name,
		Points:       points,
		Failed:       failed,
	})
}
