package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tensorplex-labs/drsweep/internal/embedding"
	"github.com/tensorplex-labs/drsweep/internal/fidelity"
	"github.com/tensorplex-labs/drsweep/internal/paramset"
	"github.com/tensorplex-labs/drsweep/internal/sweep"
)

type gridFile struct {
	Hyperparameters map[string]any `yaml:"hyperparameters"`
}

// LoadGrid reads a YAML hyperparameter grid. A scalar value is a grid with
// a single candidate.
func LoadGrid(path string) (paramset.Grid, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}
	return ParseGrid(raw)
}

func ParseGrid(raw []byte) (paramset.Grid, error) {
	var file gridFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse grid: %w", err)
	}

	grid := make(paramset.Grid, len(file.Hyperparameters))
	for name, v := range file.Hyperparameters {
		switch values := v.(type) {
		case []any:
			grid[name] = values
		case map[string]any:
			return nil, fmt.Errorf("parse grid: hyperparameter %q must be a value or a list", name)
		default:
			grid[name] = []any{values}
		}
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	return grid, nil
}

// SweepConfig combines the environment with a loaded grid.
func (c *AppConfig) SweepConfig(grid paramset.Grid) sweep.Config {
	return sweep.Config{
		Dataset:        c.Dataset,
		Kernel:         c.KernelIdentity(),
		Grid:           grid,
		Metrics:        c.Metrics,
		Interval:       fidelity.KInterval{Min: c.KMin, Max: c.KMax},
		Objectives:     c.Objectives,
		Geodesic:       c.GeodesicStress,
		CheckpointSize: c.CheckpointSize,
		Workers:        c.Workers,
		Seed:           c.Seed,
		ReportPath:     c.ReportPath,
	}
}

// KernelIdentity names the kernel results are stored under. The remote kernel
// is qualified by the service-side kernel it delegates to.
func (c *AppConfig) KernelIdentity() string {
	if !strings.EqualFold(strings.TrimSpace(c.Kernel), embedding.KernelRemote) {
		return c.Kernel
	}
	backend := c.EmbedServiceKernel
	if backend == "" {
		backend = embedding.KernelSMACOF
	}
	return embedding.KernelRemote + ":" + backend
}

func (c *AppConfig) RemoteConfig() *embedding.RemoteConfig {
	return &embedding.RemoteConfig{
		BaseURL:  c.EmbedServiceURL,
		Kernel:   c.EmbedServiceKernel,
		Timeout:  c.EmbedServiceTimeout,
		RetryMax: c.EmbedServiceRetryMax,
	}
}

// DefaultGrid is used when no grid file is configured.
func DefaultGrid(kernel string) paramset.Grid {
	switch kernel {
	case embedding.KernelSMACOF, embedding.KernelRemote:
		return paramset.Grid{
			"n_components": {2},
			"n_iter":       {100, 300},
			"init":         {"classical", "random"},
			"seed":         {0, 1},
		}
	default:
		return paramset.Grid{"n_components": {2, 3}}
	}
}
