package chunk

import (
	"fmt"

	"github.com/cartridge/trajectory/internal/schema"
	"github.com/cartridge/trajectory/internal/types"
)

// Decoder turns serialized chunk records into typed timesteps, validated
// against the schema registry. Decoding is a pure transform.
//
// Terminals are derived as 1 - discount from the recorded discount field
// (discount is 0 at a terminal step, else 1) and truncations default to
// all-zero: the recording does not distinguish the two signals, so dataset
// episodes always surface as terminated, never truncated. Zero-padded steps
// carry discount 0 and therefore also decode with terminals == 1; their
// mask distinguishes them from real terminal steps.
type Decoder struct {
	reg    *schema.Registry
	seqLen int
}

// NewDecoder builds a decoder for chunks of the given sequence length.
func NewDecoder(reg *schema.Registry, sequenceLength int) (*Decoder, error) {
	if sequenceLength <= 0 {
		return nil, fmt.Errorf("chunk: sequence length must be positive, got %d", sequenceLength)
	}
	return &Decoder{reg: reg, seqLen: sequenceLength}, nil
}

// Decode validates one record against the registry and expands it into
// per-timestep tensors.
func (d *Decoder) Decode(rec Record) (Chunk, error) {
	T := d.seqLen

	if err := checkPayload("zero_padding_mask", "", rec.ZeroPaddingMask, []int{T}, schema.Float32); err != nil {
		return Chunk{}, err
	}
	if d.reg.HasState() {
		wantState := append([]int{T}, d.reg.State().Shape...)
		if err := checkPayload("env_state", "", rec.EnvState, wantState, d.reg.State().Dtype); err != nil {
			return Chunk{}, err
		}
	}

	for _, agent := range d.reg.Agents() {
		fields, ok := rec.Agents[agent]
		if !ok {
			return Chunk{}, &schema.MismatchError{Field: "record", Agent: agent}
		}
		obsSpec := d.reg.Observation(agent)
		if err := checkPayload("observations", agent, fields.Observations, append([]int{T}, obsSpec.Shape...), obsSpec.Dtype); err != nil {
			return Chunk{}, err
		}
		actSpec := d.reg.Action(agent)
		if err := checkPayload("actions", agent, fields.Actions, append([]int{T}, actSpec.Shape...), actSpec.Dtype); err != nil {
			return Chunk{}, err
		}
		if err := checkPayload("rewards", agent, fields.Rewards, []int{T}, schema.Float32); err != nil {
			return Chunk{}, err
		}
		if err := checkPayload("discounts", agent, fields.Discounts, []int{T}, schema.Float32); err != nil {
			return Chunk{}, err
		}
		if d.reg.HasLegals() {
			legalSpec := d.reg.Legal(agent)
			if err := checkPayload("legal_actions", agent, fields.LegalActions, append([]int{T}, legalSpec.Shape...), legalSpec.Dtype); err != nil {
				return Chunk{}, err
			}
		}
	}

	steps := make([]types.Timestep, T)
	for t := 0; t < T; t++ {
		ts := types.Timestep{
			Observations: make(map[string]types.Tensor, len(d.reg.Agents())),
			Actions:      make(map[string]types.Tensor, len(d.reg.Agents())),
			Rewards:      make(map[string]float32, len(d.reg.Agents())),
			Terminals:    make(map[string]float32, len(d.reg.Agents())),
			Truncations:  make(map[string]float32, len(d.reg.Agents())),
			Mask:         rec.ZeroPaddingMask.Data[t],
		}
		if d.reg.HasLegals() {
			ts.Legals = make(map[string]types.Tensor, len(d.reg.Agents()))
		}
		for _, agent := range d.reg.Agents() {
			fields := rec.Agents[agent]
			ts.Observations[agent] = sliceStep(fields.Observations, t, d.reg.Observation(agent).Shape)
			ts.Actions[agent] = sliceStep(fields.Actions, t, d.reg.Action(agent).Shape)
			ts.Rewards[agent] = fields.Rewards.Data[t]
			ts.Terminals[agent] = 1 - fields.Discounts.Data[t]
			ts.Truncations[agent] = 0
			if d.reg.HasLegals() {
				ts.Legals[agent] = sliceStep(fields.LegalActions, t, d.reg.Legal(agent).Shape)
			}
		}
		if d.reg.HasState() {
			st := sliceStep(rec.EnvState, t, d.reg.State().Shape)
			ts.State = &st
		}
		steps[t] = ts
	}

	return Chunk{Steps: steps, Return: rec.EpisodeReturn}, nil
}

// sliceStep copies timestep t out of a [T, ...dims] payload.
func sliceStep(p TensorPayload, t int, dims []int) types.Tensor {
	n := types.NumElements(dims)
	out := types.NewTensor(dims...)
	copy(out.Data, p.Data[t*n:(t+1)*n])
	return out
}

func checkPayload(field, agent string, p TensorPayload, wantShape []int, wantDtype schema.Dtype) error {
	if p.Dtype != string(wantDtype) {
		return &schema.MismatchError{
			Field: field,
			Agent: agent,
			Want:  "dtype " + string(wantDtype),
			Got:   "dtype " + p.Dtype,
		}
	}
	if !types.ShapeEqual(p.Shape, wantShape) {
		return &schema.MismatchError{
			Field: field,
			Agent: agent,
			Want:  fmt.Sprintf("shape %v", wantShape),
			Got:   fmt.Sprintf("shape %v", p.Shape),
		}
	}
	if len(p.Data) != types.NumElements(p.Shape) {
		return &schema.MismatchError{
			Field: field,
			Agent: agent,
			Want:  fmt.Sprintf("%d elements", types.NumElements(p.Shape)),
			Got:   fmt.Sprintf("%d elements", len(p.Data)),
		}
	}
	return nil
}
