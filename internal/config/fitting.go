package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sizespectrum/kernelfit/internal/fit"
	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/optim"
)

// DefaultConfigPath is the canonical defaults file, relative to the
// repository root.
const DefaultConfigPath = "config/fitting.defaults.json"

// FitConfig holds fitting parameters loaded from JSON. Every field is a
// pointer so that an absent key falls back to its default through the Get
// accessors, and a partial file only overrides what it names.
type FitConfig struct {
	// Integration support of the density, in log mass-ratio units. Changing
	// it changes every derived kernel coefficient.
	SupportMin *float64 `json:"support_min,omitempty"`
	SupportMax *float64 `json:"support_max,omitempty"`

	QuadraturePanels *int `json:"quadrature_panels,omitempty"`
	QuadratureNodes  *int `json:"quadrature_nodes,omitempty"`

	// Lambda is the model-wide spectral exponent used by the coefficient
	// mapping. It is never estimated.
	Lambda *float64 `json:"lambda,omitempty"`

	InitialAlpha  *float64 `json:"initial_alpha,omitempty"`
	InitialULeft  *float64 `json:"initial_u_left,omitempty"`
	InitialURight *float64 `json:"initial_u_right,omitempty"`

	Method             *string  `json:"method,omitempty"` // "bfgs" or "nelder-mead"
	MaxIterations      *int     `json:"max_iterations,omitempty"`
	GradientThreshold  *float64 `json:"gradient_threshold,omitempty"`
	FunctionTolerance  *float64 `json:"function_tolerance,omitempty"`
	ConvergeIterations *int     `json:"converge_iterations,omitempty"`
	FDStep             *float64 `json:"fd_step,omitempty"` // 0 selects the formula default
	StallGradient      *float64 `json:"stall_gradient,omitempty"`

	BinCount *int `json:"bin_count,omitempty"`
	Workers  *int `json:"workers,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyFitConfig returns a config with every field unset.
func EmptyFitConfig() *FitConfig {
	return &FitConfig{}
}

// DefaultFitConfig returns a config with every field set to its default.
func DefaultFitConfig() *FitConfig {
	c := EmptyFitConfig()
	return &FitConfig{
		SupportMin:         ptrFloat64(c.GetSupportMin()),
		SupportMax:         ptrFloat64(c.GetSupportMax()),
		QuadraturePanels:   ptrInt(c.GetQuadraturePanels()),
		QuadratureNodes:    ptrInt(c.GetQuadratureNodes()),
		Lambda:             ptrFloat64(c.GetLambda()),
		InitialAlpha:       ptrFloat64(c.GetInitialAlpha()),
		InitialULeft:       ptrFloat64(c.GetInitialULeft()),
		InitialURight:      ptrFloat64(c.GetInitialURight()),
		Method:             ptrString(c.GetMethod()),
		MaxIterations:      ptrInt(c.GetMaxIterations()),
		GradientThreshold:  ptrFloat64(c.GetGradientThreshold()),
		FunctionTolerance:  ptrFloat64(c.GetFunctionTolerance()),
		ConvergeIterations: ptrInt(c.GetConvergeIterations()),
		FDStep:             ptrFloat64(c.GetFDStep()),
		StallGradient:      ptrFloat64(c.GetStallGradient()),
		BinCount:           ptrInt(c.GetBinCount()),
		Workers:            ptrInt(c.GetWorkers()),
	}
}

// LoadFitConfig reads and validates a JSON config file. The path must end
// in .json and the file must be at most 1MB.
func LoadFitConfig(path string) (*FitConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFitConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the repository root,
// searching parent directories so it works from package tests. It panics if
// the file cannot be found.
func MustLoadDefaultConfig() *FitConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,    // from cmd/
		"../../" + DefaultConfigPath, // from internal/config/, cmd/kernelfit/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadFitConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set.
func (c *FitConfig) Validate() error {
	if c.SupportMin != nil || c.SupportMax != nil {
		s := kernel.Support{Min: c.GetSupportMin(), Max: c.GetSupportMax()}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for name, v := range map[string]*int{
		"quadrature_panels":   c.QuadraturePanels,
		"quadrature_nodes":    c.QuadratureNodes,
		"max_iterations":      c.MaxIterations,
		"converge_iterations": c.ConvergeIterations,
		"workers":             c.Workers,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}
	if c.BinCount != nil && *c.BinCount < 2 {
		return fmt.Errorf("bin_count must be at least 2, got %d", *c.BinCount)
	}
	for name, v := range map[string]*float64{
		"initial_u_left":  c.InitialULeft,
		"initial_u_right": c.InitialURight,
	} {
		if v != nil && !(*v > 0) {
			return fmt.Errorf("%s must be positive, got %g", name, *v)
		}
	}
	for name, v := range map[string]*float64{
		"gradient_threshold": c.GradientThreshold,
		"function_tolerance": c.FunctionTolerance,
		"fd_step":            c.FDStep,
		"stall_gradient":     c.StallGradient,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", name, *v)
		}
	}
	if c.Method != nil {
		if _, err := optim.New(*c.Method, optim.Settings{}); err != nil {
			return err
		}
	}
	return nil
}

func (c *FitConfig) GetSupportMin() float64 {
	if c.SupportMin == nil {
		return kernel.DefaultSupport.Min
	}
	return *c.SupportMin
}

func (c *FitConfig) GetSupportMax() float64 {
	if c.SupportMax == nil {
		return kernel.DefaultSupport.Max
	}
	return *c.SupportMax
}

func (c *FitConfig) GetQuadraturePanels() int {
	if c.QuadraturePanels == nil {
		return kernel.DefaultPanels
	}
	return *c.QuadraturePanels
}

func (c *FitConfig) GetQuadratureNodes() int {
	if c.QuadratureNodes == nil {
		return kernel.DefaultNodes
	}
	return *c.QuadratureNodes
}

func (c *FitConfig) GetLambda() float64 {
	if c.Lambda == nil {
		return 2.05
	}
	return *c.Lambda
}

func (c *FitConfig) GetInitialAlpha() float64 {
	if c.InitialAlpha == nil {
		return -0.5
	}
	return *c.InitialAlpha
}

func (c *FitConfig) GetInitialULeft() float64 {
	if c.InitialULeft == nil {
		return 5
	}
	return *c.InitialULeft
}

func (c *FitConfig) GetInitialURight() float64 {
	if c.InitialURight == nil {
		return 5
	}
	return *c.InitialURight
}

func (c *FitConfig) GetMethod() string {
	if c.Method == nil || *c.Method == "" {
		return optim.MethodBFGS
	}
	return *c.Method
}

func (c *FitConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 1000
	}
	return *c.MaxIterations
}

func (c *FitConfig) GetGradientThreshold() float64 {
	if c.GradientThreshold == nil {
		return 1e-6
	}
	return *c.GradientThreshold
}

func (c *FitConfig) GetFunctionTolerance() float64 {
	if c.FunctionTolerance == nil {
		return 1e-10
	}
	return *c.FunctionTolerance
}

func (c *FitConfig) GetConvergeIterations() int {
	if c.ConvergeIterations == nil {
		return 20
	}
	return *c.ConvergeIterations
}

func (c *FitConfig) GetFDStep() float64 {
	if c.FDStep == nil {
		return 0
	}
	return *c.FDStep
}

func (c *FitConfig) GetStallGradient() float64 {
	if c.StallGradient == nil {
		return 1e-3
	}
	return *c.StallGradient
}

func (c *FitConfig) GetBinCount() int {
	if c.BinCount == nil {
		return 30
	}
	return *c.BinCount
}

func (c *FitConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// FitterOptions converts the config into fitter options.
func (c *FitConfig) FitterOptions() fit.Options {
	return fit.Options{
		Support: kernel.Support{Min: c.GetSupportMin(), Max: c.GetSupportMax()},
		Panels:  c.GetQuadraturePanels(),
		Nodes:   c.GetQuadratureNodes(),
		Method:  c.GetMethod(),
		Optimizer: optim.Settings{
			MaxIterations:      c.GetMaxIterations(),
			GradientThreshold:  c.GetGradientThreshold(),
			FunctionTolerance:  c.GetFunctionTolerance(),
			ConvergeIterations: c.GetConvergeIterations(),
			FDStep:             c.GetFDStep(),
			StallGradient:      c.GetStallGradient(),
		},
		InitialAlpha:  c.GetInitialAlpha(),
		InitialULeft:  c.GetInitialULeft(),
		InitialURight: c.GetInitialURight(),
		Workers:       c.GetWorkers(),
	}
}
