// Package chunk decodes recorded trajectory chunks: fixed-length,
// fixed-period slices of one episode, serialized as msgpack records inside
// gzip shard files.
package chunk

import (
	"github.com/cartridge/trajectory/internal/types"
)

// TensorPayload is the wire form of one serialized tensor: a declared dtype
// and shape plus flat row-major data.
type TensorPayload struct {
	Dtype string    `msgpack:"dtype"`
	Shape []int     `msgpack:"shape"`
	Data  []float32 `msgpack:"data"`
}

// AgentFields holds the recorded per-agent tensors of one chunk. Each tensor
// has time length sequence_length on its leading axis.
type AgentFields struct {
	Observations TensorPayload `msgpack:"observations"`
	LegalActions TensorPayload `msgpack:"legal_actions"`
	Actions      TensorPayload `msgpack:"actions"`
	Rewards      TensorPayload `msgpack:"rewards"`
	Discounts    TensorPayload `msgpack:"discounts"`
}

// Record is one serialized chunk as written by the recorder: per-agent
// fields plus the global zero-padding mask, environment state and the
// episode return the chunk belongs to.
type Record struct {
	Agents          map[string]AgentFields `msgpack:"agents"`
	ZeroPaddingMask TensorPayload          `msgpack:"zero_padding_mask"`
	EnvState        TensorPayload          `msgpack:"env_state"`
	EpisodeReturn   float32                `msgpack:"episode_return"`
}

// Chunk is a decoded record: sequence_length typed timesteps, each carrying
// its own mask, plus the recorded episode return.
type Chunk struct {
	Steps  []types.Timestep
	Return float32
}

// Length returns the fixed time length of the chunk.
func (c Chunk) Length() int {
	return len(c.Steps)
}
