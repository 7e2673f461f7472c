package chunk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/trajectory/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.New(schema.EnvSpec{
		Agents: []string{"agent_0", "agent_1"},
		Observations: map[string]schema.TensorSpec{
			"agent_0": {Shape: []int{2}, Dtype: schema.Float32},
			"agent_1": {Shape: []int{2}, Dtype: schema.Float32},
		},
		Actions: map[string]schema.TensorSpec{
			"agent_0": {Dtype: schema.Int32},
			"agent_1": {Dtype: schema.Int32},
		},
		Legals: map[string]schema.TensorSpec{
			"agent_0": {Shape: []int{3}, Dtype: schema.Float32},
			"agent_1": {Shape: []int{3}, Dtype: schema.Float32},
		},
		State: &schema.TensorSpec{Shape: []int{2}, Dtype: schema.Float32},
	})
	require.NoError(t, err)
	return reg
}

// recStep describes one recorded timestep for fixture building: a marker
// value written into every tensor, plus terminal/padding flags.
type recStep struct {
	val      float32
	terminal bool
	pad      bool
}

// buildRecord serializes recorded steps the way the recorder lays chunks
// out: per-agent [T, ...] tensors, discount 0 at terminal and padded steps.
func buildRecord(steps []recStep, episodeReturn float32) Record {
	T := len(steps)
	series := func(dims int) TensorPayload {
		shape := []int{T}
		if dims > 0 {
			shape = append(shape, dims)
		}
		n := dims
		if n == 0 {
			n = 1
		}
		data := make([]float32, 0, T*n)
		for _, s := range steps {
			v := s.val
			if s.pad {
				v = 0
			}
			for i := 0; i < n; i++ {
				data = append(data, v)
			}
		}
		return TensorPayload{Dtype: "float32", Shape: shape, Data: data}
	}

	discounts := TensorPayload{Dtype: "float32", Shape: []int{T}, Data: make([]float32, T)}
	mask := TensorPayload{Dtype: "float32", Shape: []int{T}, Data: make([]float32, T)}
	for t, s := range steps {
		if !s.terminal && !s.pad {
			discounts.Data[t] = 1
		}
		if !s.pad {
			mask.Data[t] = 1
		}
	}

	actions := series(0)
	actions.Dtype = "int32"

	fields := AgentFields{
		Observations: series(2),
		LegalActions: series(3),
		Actions:      actions,
		Rewards:      series(0),
		Discounts:    discounts,
	}
	return Record{
		Agents:          map[string]AgentFields{"agent_0": fields, "agent_1": fields},
		ZeroPaddingMask: mask,
		EnvState:        series(2),
		EpisodeReturn:   episodeReturn,
	}
}

func TestDecoderDecode(t *testing.T) {
	reg := testRegistry(t)
	dec, err := NewDecoder(reg, 4)
	require.NoError(t, err)

	rec := buildRecord([]recStep{
		{val: 1},
		{val: 2, terminal: true},
		{pad: true},
		{pad: true},
	}, 3.5)

	c, err := dec.Decode(rec)
	require.NoError(t, err)
	require.Equal(t, 4, c.Length())
	assert.Equal(t, float32(3.5), c.Return)

	// Valid step
	s0 := c.Steps[0]
	assert.Equal(t, float32(1), s0.Mask)
	assert.Equal(t, []float32{1, 1}, s0.Observations["agent_0"].Data)
	assert.Equal(t, []float32{1}, s0.Actions["agent_1"].Data)
	assert.Equal(t, float32(1), s0.Rewards["agent_0"])
	assert.Equal(t, float32(0), s0.Terminals["agent_0"])
	assert.Equal(t, float32(0), s0.Truncations["agent_0"])
	assert.Equal(t, []float32{1, 1, 1}, s0.Legals["agent_0"].Data)
	require.NotNil(t, s0.State)
	assert.Equal(t, []float32{1, 1}, s0.State.Data)

	// Terminal step: discount 0 decodes to terminal 1
	s1 := c.Steps[1]
	assert.Equal(t, float32(1), s1.Mask)
	assert.Equal(t, float32(1), s1.Terminals["agent_0"])

	// Padded step: mask 0, zero fields, and terminal 1 from zero discount
	s2 := c.Steps[2]
	assert.Equal(t, float32(0), s2.Mask)
	assert.Equal(t, []float32{0, 0}, s2.Observations["agent_0"].Data)
	assert.Equal(t, float32(1), s2.Terminals["agent_0"])
}

func TestDecoderSchemaMismatch(t *testing.T) {
	reg := testRegistry(t)
	dec, err := NewDecoder(reg, 2)
	require.NoError(t, err)

	good := buildRecord([]recStep{{val: 1}, {val: 2, terminal: true}}, 0)

	// Wrong dtype
	rec := good
	fields := rec.Agents["agent_0"]
	fields.Actions.Dtype = "float32"
	rec.Agents = map[string]AgentFields{"agent_0": fields, "agent_1": good.Agents["agent_1"]}
	_, err = dec.Decode(rec)
	assert.True(t, errors.Is(err, schema.ErrSchemaMismatch))

	// Wrong shape
	rec = good
	fields = rec.Agents["agent_0"]
	fields.Observations.Shape = []int{2, 3}
	rec.Agents = map[string]AgentFields{"agent_0": fields, "agent_1": good.Agents["agent_1"]}
	_, err = dec.Decode(rec)
	assert.True(t, errors.Is(err, schema.ErrSchemaMismatch))

	// Missing agent
	rec = good
	rec.Agents = map[string]AgentFields{"agent_0": good.Agents["agent_0"]}
	_, err = dec.Decode(rec)
	assert.True(t, errors.Is(err, schema.ErrSchemaMismatch))

	// Data length disagrees with declared shape
	rec = good
	fields = rec.Agents["agent_0"]
	fields.Rewards.Data = fields.Rewards.Data[:1]
	rec.Agents = map[string]AgentFields{"agent_0": fields, "agent_1": good.Agents["agent_1"]}
	_, err = dec.Decode(rec)
	assert.True(t, errors.Is(err, schema.ErrSchemaMismatch))
}

func TestDecoderRejectsBadSequenceLength(t *testing.T) {
	reg := testRegistry(t)
	_, err := NewDecoder(reg, 0)
	assert.Error(t, err)
}
