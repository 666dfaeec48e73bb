package daemon

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/esoh/pkg/config"
	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/ocp"
	"github.com/charlie0129/esoh/pkg/parameters"
	"github.com/charlie0129/esoh/pkg/types"
	"github.com/charlie0129/esoh/pkg/version"
)

// defaultCurvePoints is the table size of GET /ocp-curves/:name.
const defaultCurvePoints = 11

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func setSolverOptions(c *gin.Context) {
	var o esoh.Options
	if err := c.BindJSON(&o); err != nil {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
		return
	}

	switch {
	case math.IsNaN(o.Tolerance) || o.Tolerance < 0:
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, fmt.Errorf("tolerance must be positive, got %g", o.Tolerance))
		return
	case o.MaxIterations < 0:
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, fmt.Errorf("max iterations must be positive, got %d", o.MaxIterations))
		return
	case math.IsNaN(o.InitialX100) || o.InitialX100 < 0 || o.InitialX100 > 1:
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, fmt.Errorf("initial x100 must be in (0, 1], got %g", o.InitialX100))
		return
	}

	// Zero fields keep their current value.
	if o.Tolerance > 0 {
		conf.SetTolerance(o.Tolerance)
	}
	if o.MaxIterations > 0 {
		conf.SetMaxIterations(o.MaxIterations)
	}
	if o.InitialX100 > 0 {
		conf.SetInitialX100(o.InitialX100)
	}
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, types.ErrorKindInternal, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"tolerance":     conf.Tolerance(),
		"maxIterations": conf.MaxIterations(),
		"initialX100":   conf.InitialX100(),
	}).Info("solver options updated")

	c.IndentedJSON(http.StatusCreated, conf.SolverOptions())
}

func setDefaultParameterSet(c *gin.Context) {
	var name string
	if err := c.BindJSON(&name); err != nil {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
		return
	}

	if name == "" {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, errors.New("parameter set name is empty"))
		return
	}
	if _, err := conf.LookupCell(name); err != nil {
		abortWithError(c, http.StatusNotFound, types.ErrorKindNotFound, err)
		return
	}

	conf.SetDefaultParameterSet(name)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, types.ErrorKindInternal, err)
		return
	}

	logrus.Infof("set default parameter set to %s", name)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func listParameterSets(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, types.ListParameterSets(conf.Cells()))
}

func getParameterSet(c *gin.Context) {
	s, err := conf.LookupCell(c.Param("name"))
	if err != nil {
		abortWithError(c, http.StatusNotFound, types.ErrorKindNotFound, err)
		return
	}
	c.IndentedJSON(http.StatusOK, s)
}

func putParameterSet(c *gin.Context) {
	var s parameters.Set
	if err := c.BindJSON(&s); err != nil {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
		return
	}

	name := c.Param("name")
	if s.Name == "" {
		s.Name = name
	}
	if s.Name != name {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, fmt.Errorf("name %q in body does not match %q in path", s.Name, name))
		return
	}

	if err := conf.PutCell(s); err != nil {
		status, kind := solveErrorStatus(err)
		abortWithError(c, status, kind, err)
		return
	}
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, types.ErrorKindInternal, err)
		return
	}

	logrus.WithFields(s.Inputs.LogrusFields()).Infof("stored parameter set %s", s.Name)

	c.IndentedJSON(http.StatusCreated, s)
}

func deleteParameterSet(c *gin.Context) {
	name := c.Param("name")
	if !conf.DeleteCell(name) {
		abortWithError(c, http.StatusNotFound, types.ErrorKindNotFound, fmt.Errorf("%w: %q is not user-defined", parameters.ErrNotFound, name))
		return
	}
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, types.ErrorKindInternal, err)
		return
	}

	logrus.Infof("deleted parameter set %s", name)

	c.IndentedJSON(http.StatusOK, "ok")
}

// curveQuery reads the optional points and temperature query parameters.
func curveQuery(c *gin.Context, defaultPoints int) (int, float64, error) {
	points := defaultPoints
	if v := c.Query("points"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 0 {
			return 0, 0, fmt.Errorf("invalid points %q", v)
		}
		if p > ocp.MaxTablePoints {
			return 0, 0, fmt.Errorf("points must be at most %d, got %d", ocp.MaxTablePoints, p)
		}
		points = p
	}

	temperature := esoh.DefaultReferenceTemperature
	if v := c.Query("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || !(t > 0) || math.IsInf(t, 0) {
			return 0, 0, fmt.Errorf("invalid temperature %q", v)
		}
		temperature = t
	}

	return points, temperature, nil
}

func curveInfo(cv ocp.Curve, points int, temperature float64) types.OCPCurveInfo {
	info := types.OCPCurveInfo{
		Name:        cv.Name,
		Electrode:   cv.Electrode,
		Description: cv.Description,
	}
	if points > 0 {
		info.Samples = ocp.Table(cv, points, temperature)
	}
	return info
}

func listOCPCurves(c *gin.Context) {
	points, temperature, err := curveQuery(c, 0)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
		return
	}

	curves := ocp.Curves()
	ret := make([]types.OCPCurveInfo, len(curves))
	for i, cv := range curves {
		ret[i] = curveInfo(cv, points, temperature)
	}
	c.IndentedJSON(http.StatusOK, ret)
}

func getOCPCurve(c *gin.Context) {
	points, temperature, err := curveQuery(c, defaultCurvePoints)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, types.ErrorKindInvalidInput, err)
		return
	}

	cv, err := ocp.Lookup(c.Param("name"))
	if err != nil {
		abortWithError(c, http.StatusNotFound, types.ErrorKindNotFound, err)
		return
	}
	c.IndentedJSON(http.StatusOK, curveInfo(cv, points, temperature))
}
