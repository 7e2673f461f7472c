// Package vault locates recorded datasets: a static registry mapping
// (environment family, scenario) to a download URL and the chunking
// parameters the reassembler configures itself from, plus shard discovery
// and ingestion.
package vault

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cartridge/trajectory/internal/schema"
)

// DatasetInfo is one registry entry. SequenceLength and Period describe how
// the dataset was chunked at recording time and are the single source of
// truth for reassembly; they are never derived by inspecting the data.
type DatasetInfo struct {
	URL              string `yaml:"url"`
	SequenceLength   int    `yaml:"sequence_length"`
	Period           int    `yaml:"period"`
	MaxEpisodeLength int    `yaml:"max_episode_length"`

	// Environment description, from which the schema registry is built.
	Agents           []string     `yaml:"agents"`
	ObservationShape []int        `yaml:"observation_shape"`
	ActionShape      []int        `yaml:"action_shape"`
	ActionDtype      schema.Dtype `yaml:"action_dtype"`
	LegalsShape      []int        `yaml:"legals_shape"`
	StateShape       []int        `yaml:"state_shape"`
}

// Schema builds the field schema from the entry's environment description.
// Every agent shares the same observation/action shapes, which is how the
// recorded scenarios are laid out.
func (d DatasetInfo) Schema() (*schema.Registry, error) {
	actDtype := d.ActionDtype
	if actDtype == "" {
		actDtype = schema.Float32
	}
	spec := schema.EnvSpec{
		Agents:       d.Agents,
		Observations: make(map[string]schema.TensorSpec, len(d.Agents)),
		Actions:      make(map[string]schema.TensorSpec, len(d.Agents)),
	}
	if d.LegalsShape != nil {
		spec.Legals = make(map[string]schema.TensorSpec, len(d.Agents))
	}
	for _, agent := range d.Agents {
		spec.Observations[agent] = schema.TensorSpec{Shape: d.ObservationShape, Dtype: schema.Float32}
		spec.Actions[agent] = schema.TensorSpec{Shape: d.ActionShape, Dtype: actDtype}
		if d.LegalsShape != nil {
			spec.Legals[agent] = schema.TensorSpec{Shape: d.LegalsShape, Dtype: schema.Float32}
		}
	}
	if d.StateShape != nil {
		spec.State = &schema.TensorSpec{Shape: d.StateShape, Dtype: schema.Float32}
	}
	return schema.New(spec)
}

// Registry maps environment family then scenario name to dataset entries.
// It is loaded once at startup and passed explicitly; there is no
// process-wide mutable table.
type Registry struct {
	Environments map[string]map[string]DatasetInfo `yaml:"environments"`
}

// LoadRegistry reads a registry YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vault: read registry %s: %w", path, err)
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("vault: parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Lookup resolves one (environment family, scenario) pair.
func (r *Registry) Lookup(env, scenario string) (DatasetInfo, error) {
	scenarios, ok := r.Environments[env]
	if !ok {
		return DatasetInfo{}, fmt.Errorf("vault: unknown environment family %q", env)
	}
	info, ok := scenarios[scenario]
	if !ok {
		return DatasetInfo{}, fmt.Errorf("vault: unknown scenario %q for environment %q", scenario, env)
	}
	if info.SequenceLength <= 0 || info.Period <= 0 {
		return DatasetInfo{}, fmt.Errorf("vault: registry entry %s/%s has invalid chunking parameters", env, scenario)
	}
	return info, nil
}
