package types

import (
	"sort"

	"github.com/charlie0129/esoh/pkg/ocp"
	"github.com/charlie0129/esoh/pkg/parameters"
)

// OCPCurveInfo describes a registered curve, optionally tabulated.
type OCPCurveInfo struct {
	Name        string        `json:"name"`
	Electrode   ocp.Electrode `json:"electrode"`
	Description string        `json:"description"`
	Samples     []ocp.Sample  `json:"samples,omitempty"`
}

// ParameterSetInfo is a parameter set as listed by the daemon.
type ParameterSetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Builtin is false for sets defined in the config file.
	Builtin bool `json:"builtin"`
}

// ListParameterSets merges the built-in sets with user-defined cells, which
// shadow built-in sets of the same name. The result is sorted by name.
func ListParameterSets(cells []parameters.Set) []ParameterSetInfo {
	byName := map[string]ParameterSetInfo{}
	for _, s := range parameters.Builtin() {
		byName[s.Name] = ParameterSetInfo{Name: s.Name, Description: s.Description, Builtin: true}
	}
	for _, s := range cells {
		byName[s.Name] = ParameterSetInfo{Name: s.Name, Description: s.Description}
	}

	ret := make([]ParameterSetInfo, 0, len(byName))
	for _, info := range byName {
		ret = append(ret, info)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}
