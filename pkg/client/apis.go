package client

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/esoh/pkg/config"
	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/hostbattery"
	"github.com/charlie0129/esoh/pkg/parameters"
	"github.com/charlie0129/esoh/pkg/types"
)

// unmarshal decodes a daemon response into a new T.
func unmarshal[T any](ret string, what string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return &v, nil
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) Solve(req types.SolveRequest) (*types.SolveResponse, error) {
	payload, err := marshal(req)
	if err != nil {
		return nil, err
	}
	ret, err := c.Post("/solve", payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to solve")
	}
	return unmarshal[types.SolveResponse](ret, "solve response")
}

func (c *Client) Sweep(req types.SweepRequest) (*types.SweepResponse, error) {
	payload, err := marshal(req)
	if err != nil {
		return nil, err
	}
	ret, err := c.Post("/sweep", payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to run sweep")
	}
	return unmarshal[types.SweepResponse](ret, "sweep response")
}

func (c *Client) ParameterSets() ([]types.ParameterSetInfo, error) {
	ret, err := c.Get("/parameter-sets")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list parameter sets")
	}
	sets, err := unmarshal[[]types.ParameterSetInfo](ret, "parameter sets")
	if err != nil {
		return nil, err
	}
	return *sets, nil
}

func (c *Client) GetParameterSet(name string) (*parameters.Set, error) {
	ret, err := c.Get("/parameter-sets/" + url.PathEscape(name))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get parameter set %s", name)
	}
	return unmarshal[parameters.Set](ret, "parameter set")
}

func (c *Client) PutParameterSet(s parameters.Set) error {
	payload, err := marshal(s)
	if err != nil {
		return err
	}
	_, err = c.Put("/parameter-sets/"+url.PathEscape(s.Name), payload)
	return pkgerrors.Wrapf(err, "failed to store parameter set %s", s.Name)
}

func (c *Client) DeleteParameterSet(name string) error {
	_, err := c.Delete("/parameter-sets/" + url.PathEscape(name))
	return pkgerrors.Wrapf(err, "failed to delete parameter set %s", name)
}

func (c *Client) SetDefaultParameterSet(name string) (string, error) {
	payload, err := marshal(name)
	if err != nil {
		return "", err
	}
	return c.Put("/default-parameter-set", payload)
}

func (c *Client) SetSolverOptions(o esoh.Options) (*esoh.Options, error) {
	payload, err := marshal(o)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/solver", payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set solver options")
	}
	return unmarshal[esoh.Options](ret, "solver options")
}

func (c *Client) SetHealthSchedule(expr string) (string, error) {
	payload, err := marshal(expr)
	if err != nil {
		return "", err
	}
	return c.Put("/health-schedule", payload)
}

func (c *Client) HealthSchedule() (*types.HealthScheduleStatus, error) {
	ret, err := c.Get("/health-schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get health schedule")
	}
	return unmarshal[types.HealthScheduleStatus](ret, "health schedule")
}

// SkipHealthSnapshot drops the next scheduled snapshot.
func (c *Client) SkipHealthSnapshot() (*types.HealthScheduleStatus, error) {
	ret, err := c.Post("/health-schedule/skip", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to skip health snapshot")
	}
	return unmarshal[types.HealthScheduleStatus](ret, "health schedule")
}

// PostponeHealthSnapshot delays the next scheduled snapshot by d.
func (c *Client) PostponeHealthSnapshot(d time.Duration) (*types.HealthScheduleStatus, error) {
	payload, err := marshal(types.PostponeRequest{Duration: d.String()})
	if err != nil {
		return nil, err
	}
	ret, err := c.Post("/health-schedule/postpone", payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to postpone health snapshot")
	}
	return unmarshal[types.HealthScheduleStatus](ret, "health schedule")
}

// OCPCurves lists the daemon's curves, tabulated at points stoichiometries
// when points > 0.
func (c *Client) OCPCurves(points int) ([]types.OCPCurveInfo, error) {
	path := "/ocp-curves"
	if points > 0 {
		path += "?points=" + strconv.Itoa(points)
	}
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list ocp curves")
	}
	curves, err := unmarshal[[]types.OCPCurveInfo](ret, "ocp curves")
	if err != nil {
		return nil, err
	}
	return *curves, nil
}

func (c *Client) OCPCurve(name string, points int) (*types.OCPCurveInfo, error) {
	path := "/ocp-curves/" + url.PathEscape(name)
	if points > 0 {
		path += "?points=" + strconv.Itoa(points)
	}
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get ocp curve %s", name)
	}
	return unmarshal[types.OCPCurveInfo](ret, "ocp curve")
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return unmarshal[config.RawFileConfig](ret, "config")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	v, err := unmarshal[string](ret, "version")
	if err != nil {
		return "", err
	}
	return *v, nil
}

func (c *Client) HealthHistory() ([]hostbattery.Snapshot, error) {
	ret, err := c.Get("/health-history")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get health history")
	}
	snaps, err := unmarshal[[]hostbattery.Snapshot](ret, "health history")
	if err != nil {
		return nil, err
	}
	return *snaps, nil
}

// TakeHealthSnapshot asks the daemon to read the host battery now.
func (c *Client) TakeHealthSnapshot() (*hostbattery.Snapshot, error) {
	ret, err := c.Post("/health-history", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to take health snapshot")
	}
	return unmarshal[hostbattery.Snapshot](ret, "health snapshot")
}
