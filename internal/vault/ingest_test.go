package vault

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/trajectory/internal/chunk"
	"github.com/cartridge/trajectory/internal/reassembly"
	"github.com/cartridge/trajectory/internal/schema"
)

type ingestStep struct {
	reward   float32
	terminal bool
	pad      bool
}

// makeRecord lays recorded steps out the way a single-agent recorder does:
// one value per step in every tensor, discount 0 at terminal and padded
// steps.
func makeRecord(steps []ingestStep, ret float32) chunk.Record {
	T := len(steps)
	obs := chunk.TensorPayload{Dtype: "float32", Shape: []int{T, 1}, Data: make([]float32, T)}
	act := chunk.TensorPayload{Dtype: "int32", Shape: []int{T}, Data: make([]float32, T)}
	rew := chunk.TensorPayload{Dtype: "float32", Shape: []int{T}, Data: make([]float32, T)}
	disc := chunk.TensorPayload{Dtype: "float32", Shape: []int{T}, Data: make([]float32, T)}
	mask := chunk.TensorPayload{Dtype: "float32", Shape: []int{T}, Data: make([]float32, T)}
	for t, s := range steps {
		if !s.pad {
			obs.Data[t] = s.reward
			act.Data[t] = s.reward
			rew.Data[t] = s.reward
			mask.Data[t] = 1
		}
		if !s.terminal && !s.pad {
			disc.Data[t] = 1
		}
	}
	return chunk.Record{
		Agents: map[string]chunk.AgentFields{
			"agent_0": {Observations: obs, Actions: act, Rewards: rew, Discounts: disc},
		},
		ZeroPaddingMask: mask,
		EpisodeReturn:   ret,
	}
}

func writeShard(t *testing.T, path string, recs ...chunk.Record) {
	t.Helper()
	w, err := chunk.CreateShard(path)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Close())
}

func TestLoadEpisodes(t *testing.T) {
	reg, err := schema.New(schema.EnvSpec{
		Agents: []string{"agent_0"},
		Observations: map[string]schema.TensorSpec{
			"agent_0": {Shape: []int{1}, Dtype: schema.Float32},
		},
		Actions: map[string]schema.TensorSpec{
			"agent_0": {Dtype: schema.Int32},
		},
	})
	require.NoError(t, err)

	dir := t.TempDir()
	// Episode of 3 steps split across two overlap-free chunks, the second
	// padded past the terminal.
	writeShard(t, filepath.Join(dir, "chunks_0.gz"),
		makeRecord([]ingestStep{{reward: 1}, {reward: 2}}, 0),
		makeRecord([]ingestStep{{reward: 3, terminal: true}, {pad: true}}, 6),
	)
	// A terminated two-step episode, then an unterminated trailing one that
	// only Flush recovers.
	writeShard(t, filepath.Join(dir, "chunks_1.gz"),
		makeRecord([]ingestStep{{reward: 4}, {reward: 5, terminal: true}}, 9),
		makeRecord([]ingestStep{{reward: 6}, {reward: 7}}, 13),
	)

	dec, err := chunk.NewDecoder(reg, 2)
	require.NoError(t, err)
	reasm, err := reassembly.New(reg, 2, 100)
	require.NoError(t, err)

	episodes, err := LoadEpisodes(context.Background(), zerolog.Nop(), dir, dec, reasm)
	require.NoError(t, err)
	require.Len(t, episodes, 3)

	assert.Equal(t, 3, episodes[0].Length())
	assert.Equal(t, float32(6), episodes[0].Return)
	assert.Equal(t, float32(3), episodes[0].Steps[2].Rewards["agent_0"])
	assert.Equal(t, float32(1), episodes[0].Steps[2].Terminals["agent_0"])

	assert.Equal(t, 2, episodes[1].Length())
	assert.Equal(t, float32(9), episodes[1].Return)

	// Trailing episode recovered without a terminal
	assert.Equal(t, 2, episodes[2].Length())
	assert.Equal(t, float32(6), episodes[2].Steps[0].Rewards["agent_0"])
}

func TestLoadEpisodesNoShards(t *testing.T) {
	reg, err := schema.New(schema.EnvSpec{
		Agents: []string{"agent_0"},
		Observations: map[string]schema.TensorSpec{
			"agent_0": {Shape: []int{1}, Dtype: schema.Float32},
		},
		Actions: map[string]schema.TensorSpec{
			"agent_0": {Dtype: schema.Int32},
		},
	})
	require.NoError(t, err)
	dec, err := chunk.NewDecoder(reg, 2)
	require.NoError(t, err)
	reasm, err := reassembly.New(reg, 2, 100)
	require.NoError(t, err)

	_, err = LoadEpisodes(context.Background(), zerolog.Nop(), t.TempDir(), dec, reasm)
	assert.Error(t, err)
}
