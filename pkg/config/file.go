package config

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/parameters"
	"github.com/charlie0129/esoh/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Tolerance:           ptr.To(esoh.DefaultTolerance),
		MaxIterations:       ptr.To(esoh.DefaultMaxIterations),
		InitialX100:         ptr.To(esoh.DefaultInitialX100),
		DefaultParameterSet: ptr.To(parameters.Mohtat2020),
		// Empty disables the scheduled health snapshots.
		HealthSchedule:     ptr.To("@every 1h"),
		AllowNonRootAccess: ptr.To(false),
		RateLimit:          ptr.To(20.0),
		RateBurst:          ptr.To(40),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	Tolerance           *float64         `json:"tolerance,omitempty"`
	MaxIterations       *int             `json:"maxIterations,omitempty"`
	InitialX100         *float64         `json:"initialX100,omitempty"`
	DefaultParameterSet *string          `json:"defaultParameterSet,omitempty"`
	HealthSchedule      *string          `json:"healthSchedule,omitempty"`
	AllowNonRootAccess  *bool            `json:"allowNonRootAccess,omitempty"`
	RateLimit           *float64         `json:"rateLimit,omitempty"`
	RateBurst           *int             `json:"rateBurst,omitempty"`
	Cells               []parameters.Set `json:"cells,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		Tolerance:           ptr.To(c.Tolerance()),
		MaxIterations:       ptr.To(c.MaxIterations()),
		InitialX100:         ptr.To(c.InitialX100()),
		DefaultParameterSet: ptr.To(c.DefaultParameterSet()),
		HealthSchedule:      ptr.To(c.HealthSchedule()),
		AllowNonRootAccess:  ptr.To(c.AllowNonRootAccess()),
		RateLimit:           ptr.To(c.RateLimit()),
		RateBurst:           ptr.To(c.RateBurst()),
		Cells:               c.Cells(),
	}

	return rawConfig, nil
}

// valueOr returns *p, or *def when p is nil.
func valueOr[T any](p, def *T) T {
	if p != nil {
		return *p
	}
	return *def
}

func (f *File) Tolerance() float64 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.Tolerance, defaultFileConfig.Tolerance)
}

func (f *File) MaxIterations() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.MaxIterations, defaultFileConfig.MaxIterations)
}

func (f *File) InitialX100() float64 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.InitialX100, defaultFileConfig.InitialX100)
}

func (f *File) DefaultParameterSet() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.DefaultParameterSet, defaultFileConfig.DefaultParameterSet)
}

func (f *File) HealthSchedule() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.HealthSchedule, defaultFileConfig.HealthSchedule)
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess)
}

func (f *File) RateLimit() float64 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.RateLimit, defaultFileConfig.RateLimit)
}

func (f *File) RateBurst() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return valueOr(f.c.RateBurst, defaultFileConfig.RateBurst)
}

func (f *File) SetTolerance(v float64) {
	if f.c == nil {
		panic("config is nil")
	}
	if v <= 0 {
		panic("tolerance must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Tolerance = &v
}

func (f *File) SetMaxIterations(i int) {
	if f.c == nil {
		panic("config is nil")
	}
	if i <= 0 {
		panic("max iterations must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.MaxIterations = &i
}

func (f *File) SetInitialX100(v float64) {
	if f.c == nil {
		panic("config is nil")
	}
	if v <= 0 || v > 1 {
		panic("initial x100 must be in (0, 1]")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.InitialX100 = &v
}

func (f *File) SetDefaultParameterSet(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.DefaultParameterSet = &s
}

func (f *File) SetHealthSchedule(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.HealthSchedule = &s
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &b
}

func (f *File) Cells() []parameters.Set {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	ret := make([]parameters.Set, len(f.c.Cells))
	copy(ret, f.c.Cells)
	return ret
}

func (f *File) PutCell(s parameters.Set) error {
	if f.c == nil {
		panic("config is nil")
	}

	if err := s.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.c.Cells {
		if f.c.Cells[i].Name == s.Name {
			f.c.Cells[i] = s
			return nil
		}
	}
	f.c.Cells = append(f.c.Cells, s)
	sort.Slice(f.c.Cells, func(i, j int) bool { return f.c.Cells[i].Name < f.c.Cells[j].Name })

	return nil
}

func (f *File) DeleteCell(name string) bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.c.Cells {
		if f.c.Cells[i].Name == name {
			f.c.Cells = append(f.c.Cells[:i], f.c.Cells[i+1:]...)
			return true
		}
	}
	return false
}

func (f *File) LookupCell(name string) (parameters.Set, error) {
	if f.c == nil {
		panic("config is nil")
	}

	if name == "" {
		name = f.DefaultParameterSet()
	}

	f.mu.RLock()
	for _, s := range f.c.Cells {
		if s.Name == name {
			f.mu.RUnlock()
			return s, nil
		}
	}
	f.mu.RUnlock()

	return parameters.Get(name)
}

func (f *File) SolverOptions() esoh.Options {
	return esoh.Options{
		Tolerance:     f.Tolerance(),
		MaxIterations: f.MaxIterations(),
		InitialX100:   f.InitialX100(),
	}
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}

	for _, s := range conf.Cells {
		if err := s.Validate(); err != nil {
			return pkgerrors.Wrapf(err, "invalid cell in config file %s", f.filepath)
		}
	}

	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"tolerance":           f.Tolerance(),
		"maxIterations":       f.MaxIterations(),
		"initialX100":         f.InitialX100(),
		"defaultParameterSet": f.DefaultParameterSet(),
		"healthSchedule":      f.HealthSchedule(),
		"allowNonRootAccess":  f.AllowNonRootAccess(),
		"rateLimit":           f.RateLimit(),
		"rateBurst":           f.RateBurst(),
		"cells":               len(f.Cells()),
	}
}
