package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"

	"triage/internal/logging"
	"triage/internal/queue"
	"triage/internal/services"
)

// ModuleSpec is one entry of a module chain in the pipeline config.
type ModuleSpec struct {
	Module   string `toml:"module"`
	Args     Args   `toml:"args"`
	Disabled bool   `toml:"disabled"`
}

// PipelineConfig lists the module chain for each task kind.
type PipelineConfig struct {
	FileAnalysis []ModuleSpec `toml:"file_analysis"`
	Carve        []ModuleSpec `toml:"carve"`
	Reporting    []ModuleSpec `toml:"reporting"`
}

// Chain returns the configured entries for kind.
func (c *PipelineConfig) Chain(kind queue.Kind) []ModuleSpec {
	if c == nil {
		return nil
	}
	switch kind {
	case queue.KindFileAnalysis:
		return c.FileAnalysis
	case queue.KindCarve:
		return c.Carve
	case queue.KindReport:
		return c.Reporting
	default:
		return nil
	}
}

// LoadPipelineConfig decodes a pipeline config file. Unknown keys are errors.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "load config",
				fmt.Sprintf("pipeline config %s not found", path), err)
		}
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "load config", "open pipeline config", err)
	}
	defer file.Close()
	return DecodePipelineConfig(file)
}

// DecodePipelineConfig decodes pipeline config TOML from r.
func DecodePipelineConfig(r io.Reader) (*PipelineConfig, error) {
	var cfg PipelineConfig
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "load config", "parse pipeline config", err)
	}
	return &cfg, nil
}

// Manager builds pipelines for each task kind and caches them for the run.
type Manager struct {
	registry *Registry
	deps     Deps
	opts     []Option

	configPath string
	config     *PipelineConfig
	configErr  error
	loadOnce   sync.Once

	mu        sync.Mutex
	pipelines map[queue.Kind]*Pipeline
	errs      map[queue.Kind]error
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithPipelineConfig supplies an already decoded config instead of reading
// the file named by the system configuration.
func WithPipelineConfig(cfg *PipelineConfig) ManagerOption {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithPipelineOptions applies opts to every pipeline the manager builds.
func WithPipelineOptions(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.opts = append(m.opts, opts...)
	}
}

// NewManager creates a manager. The pipeline config is read lazily on the
// first CreatePipeline call.
func NewManager(registry *Registry, deps Deps, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry:  registry,
		deps:      deps,
		pipelines: make(map[queue.Kind]*Pipeline),
		errs:      make(map[queue.Kind]error),
	}
	if deps.Config != nil {
		m.configPath = deps.Config.Paths.PipelineConfig
	}
	for _, opt := range opts {
		opt(m)
	}
	if deps.Logger != nil {
		m.opts = append([]Option{WithLogger(deps.Logger)}, m.opts...)
	}
	if deps.Metrics != nil {
		m.opts = append(m.opts, WithMetrics(deps.Metrics))
	}
	if deps.Config != nil {
		m.opts = append(m.opts, WithTaskTimeout(deps.Config.TaskTimeoutDuration()))
	}
	return m
}

func (m *Manager) pipelineConfig() (*PipelineConfig, error) {
	m.loadOnce.Do(func() {
		if m.config != nil {
			return
		}
		if strings.TrimSpace(m.configPath) == "" {
			m.configErr = services.Wrap(services.ErrConfiguration, "pipeline", "load config", "no pipeline config path", nil)
			return
		}
		m.config, m.configErr = LoadPipelineConfig(m.configPath)
	})
	return m.config, m.configErr
}

// CreatePipeline returns the pipeline for kind, building it on first use.
// Resolution failures wrap services.ErrConfiguration and are cached too.
func (m *Manager) CreatePipeline(kind queue.Kind) (*Pipeline, error) {
	if !kind.Valid() {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "create",
			fmt.Sprintf("unknown task kind %q", kind), nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipelines[kind]; ok {
		return p, nil
	}
	if err, ok := m.errs[kind]; ok {
		return nil, err
	}

	p, err := m.build(kind)
	if err != nil {
		m.errs[kind] = err
		return nil, err
	}
	m.pipelines[kind] = p
	return p, nil
}

func (m *Manager) build(kind queue.Kind) (*Pipeline, error) {
	cfg, err := m.pipelineConfig()
	if err != nil {
		return nil, err
	}

	deps := m.deps
	deps.Logger = logging.NewComponentLogger(m.deps.Logger, "module")

	var result *multierror.Error
	modules := make([]Module, 0, len(cfg.Chain(kind)))
	for i, spec := range cfg.Chain(kind) {
		if spec.Disabled {
			continue
		}
		name := strings.TrimSpace(spec.Module)
		if name == "" {
			result = multierror.Append(result, fmt.Errorf("%s[%d]: module name is required", kind, i))
			continue
		}
		reg, ok := m.registry.Lookup(name)
		if !ok {
			result = multierror.Append(result, fmt.Errorf("%s[%d]: unknown module %q", kind, i, name))
			continue
		}
		if !reg.Supports(kind) {
			result = multierror.Append(result, fmt.Errorf("%s[%d]: module %q cannot run in a %s pipeline", kind, i, name, kind))
			continue
		}
		args := spec.Args
		if args == nil {
			args = Args{}
		}
		mod, err := reg.New(deps, args)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s[%d]: %s: %w", kind, i, name, err))
			continue
		}
		modules = append(modules, mod)
	}
	if err := result.ErrorOrNil(); err != nil {
		closeModules(modules)
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "create",
			fmt.Sprintf("%s pipeline", kind), err)
	}
	return New(kind, modules, m.opts...), nil
}

// Close releases modules that hold resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result *multierror.Error
	for kind, p := range m.pipelines {
		if err := closeModules(p.modules); err != nil {
			result = multierror.Append(result, err)
		}
		delete(m.pipelines, kind)
	}
	return result.ErrorOrNil()
}

func closeModules(modules []Module) error {
	var result *multierror.Error
	for _, mod := range modules {
		if closer, ok := mod.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close %s: %w", mod.Name(), err))
			}
		}
	}
	return result.ErrorOrNil()
}
