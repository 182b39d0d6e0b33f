package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"resolvd/internal/domain"
)

// Discoverer probes one capability source and reports the manifests it
// found. Discoverers are stateless between runs; re-discovery replaces
// their previous output wholesale.
type Discoverer interface {
	Name() string
	Discover(ctx context.Context) ([]domain.ToolManifest, error)
}

// ManifestDir loads YAML tool manifests from a directory. Each .yaml
// file declares a tools list; files that fail to parse are skipped
// with a warning so one bad file cannot empty the catalog.
type ManifestDir struct {
	logger *zap.Logger
	dir    string
}

// NewManifestDir creates a directory discoverer.
func NewManifestDir(dir string, logger *zap.Logger) *ManifestDir {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestDir{logger: logger.Named("discovery"), dir: dir}
}

func (d *ManifestDir) Name() string {
	return "manifest_dir:" + d.dir
}

func (d *ManifestDir) Discover(ctx context.Context) ([]domain.ToolManifest, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest dir %s: %w", d.dir, err)
	}

	var manifests []domain.ToolManifest
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(d.dir, entry.Name())
		loaded, err := loadManifestFile(path, d.Name())
		if err != nil {
			d.logger.Warn("manifest file skipped",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}
		manifests = append(manifests, loaded...)
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Key() < manifests[j].Key()
	})
	return manifests, nil
}

// rawManifestFile mirrors the on-disk YAML layout.
type rawManifestFile struct {
	Tools []rawManifest `yaml:"tools"`
}

type rawManifest struct {
	Action      string         `yaml:"action"`
	Kind        string         `yaml:"kind"`
	Description string         `yaml:"description"`
	Exec        []string       `yaml:"exec"`
	Parameters  map[string]any `yaml:"parameters"`
}

func loadManifestFile(path, source string) ([]domain.ToolManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file rawManifestFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	manifests := make([]domain.ToolManifest, 0, len(file.Tools))
	for i, tool := range file.Tools {
		kind, err := domain.ParseToolKind(tool.Kind)
		if err != nil {
			return nil, fmt.Errorf("tool %d: %w", i, err)
		}
		manifest := domain.ToolManifest{
			ActionName:       strings.TrimSpace(tool.Action),
			Kind:             kind,
			Description:      tool.Description,
			Exec:             tool.Exec,
			SourceDiscoverer: source,
		}
		if len(tool.Parameters) > 0 {
			schema, err := schemaFromMap(tool.Parameters)
			if err != nil {
				return nil, fmt.Errorf("tool %d (%s): parameters: %w", i, tool.Action, err)
			}
			manifest.ParameterSchema = schema
		}
		if err := manifest.Validate(); err != nil {
			return nil, fmt.Errorf("tool %d: %w", i, err)
		}
		manifests = append(manifests, manifest)
	}
	return manifests, nil
}

// schemaFromMap converts the YAML parameter declaration into a JSON
// schema via a JSON round trip.
func schemaFromMap(params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// CLIProbe reports manifests for configured command-line tools that
// are actually present on PATH. Absent commands are silently omitted;
// they reappear on the next discovery run once installed.
type CLIProbe struct {
	logger *zap.Logger
	probes []domain.CLIProbeSpec
	look   func(string) (string, error)
}

// NewCLIProbe creates a PATH probe discoverer.
func NewCLIProbe(probes []domain.CLIProbeSpec, logger *zap.Logger) *CLIProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLIProbe{
		logger: logger.Named("discovery"),
		probes: probes,
		look:   exec.LookPath,
	}
}

func (d *CLIProbe) Name() string {
	return "cli_probe"
}

func (d *CLIProbe) Discover(ctx context.Context) ([]domain.ToolManifest, error) {
	var manifests []domain.ToolManifest
	for _, probe := range d.probes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := d.look(probe.Command); err != nil {
			d.logger.Debug("cli probe absent", zap.String("command", probe.Command))
			continue
		}
		execTemplate := probe.Exec
		if len(execTemplate) == 0 {
			execTemplate = []string{probe.Command}
		}
		manifests = append(manifests, domain.ToolManifest{
			ActionName:       probe.ActionName,
			Kind:             domain.KindCLI,
			Description:      probe.Description,
			Exec:             execTemplate,
			SourceDiscoverer: d.Name(),
		})
	}
	return manifests, nil
}

// Static returns fixed manifests. Used for built-in capabilities and
// in tests.
type Static struct {
	DiscovererName string
	Manifests      []domain.ToolManifest
}

func (d Static) Name() string {
	if d.DiscovererName == "" {
		return "static"
	}
	return d.DiscovererName
}

func (d Static) Discover(context.Context) ([]domain.ToolManifest, error) {
	out := make([]domain.ToolManifest, len(d.Manifests))
	copy(out, d.Manifests)
	return out, nil
}
