package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/trajectory/internal/schema"
	"github.com/cartridge/trajectory/internal/store"
	"github.com/cartridge/trajectory/internal/types"
)

func testSetup(t *testing.T) (*store.Store, *store.Accumulator, http.Handler) {
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
	})
	require.NoError(t, err)

	s, err := store.New(reg, store.Params{SequenceLength: 2, MaxSize: 10, SamplePeriod: 1, Seed: 1})
	require.NoError(t, err)
	acc := store.NewAccumulator(s)
	return s, acc, NewServer(s, acc, zerolog.Nop()).Routes()
}

func validTimestep() types.Timestep {
	obs := types.NewTensor(2)
	act := types.NewTensor()
	return types.Timestep{
		Observations: map[string]types.Tensor{"agent_0": obs, "agent_1": obs.Clone()},
		Actions:      map[string]types.Tensor{"agent_0": act, "agent_1": act.Clone()},
		Rewards:      map[string]float32{"agent_0": 1, "agent_1": 1},
		Terminals:    map[string]float32{"agent_0": 0, "agent_1": 0},
		Truncations:  map[string]float32{"agent_0": 0, "agent_1": 0},
		Mask:         1,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	_, _, h := testSetup(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStats(t *testing.T) {
	s, _, h := testSetup(t)
	require.NoError(t, s.Add(validTimestep()))

	rec := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st store.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.Size)
	assert.Equal(t, 10, st.Capacity)
	assert.Equal(t, 2, st.SequenceLength)
}

func TestSample(t *testing.T) {
	s, _, h := testSetup(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Add(validTimestep()))
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sample", map[string]int{"batch_size": 3})
	require.Equal(t, http.StatusOK, rec.Code)

	var b types.Batch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, []int{3, 2, 2}, b.Observations["agent_0"].Shape)
	assert.Equal(t, []int{3, 2}, b.Mask.Shape)

	// Empty body defaults to batch size 1
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sample", nil)
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &b))
	assert.Equal(t, []int{1, 2, 2}, b.Observations["agent_0"].Shape)
}

func TestSampleEmptyBufferConflict(t *testing.T) {
	_, _, h := testSetup(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/sample", map[string]int{"batch_size": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSampleBadJSON(t *testing.T) {
	_, _, h := testSetup(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sample", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddTimestep(t *testing.T) {
	s, acc, h := testSetup(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/timesteps", validTimestep())
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, acc.Pending())
	assert.Equal(t, 0, s.Size())

	// Second timestep completes the window and lands in the store
	rec = doJSON(t, h, http.MethodPost, "/api/v1/timesteps", validTimestep())
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 0, acc.Pending())
	assert.Equal(t, 2, s.Size())
}

func TestAddTimestepSchemaMismatch(t *testing.T) {
	_, _, h := testSetup(t)

	bad := validTimestep()
	bad.Observations["agent_0"] = types.NewTensor(7)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/timesteps", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAddTimestepBadPayload(t *testing.T) {
	_, _, h := testSetup(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/timesteps", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndOfEpisode(t *testing.T) {
	s, _, h := testSetup(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/timesteps", validTimestep())
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/episodes/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st store.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, uint64(1), st.Episodes)
	assert.Equal(t, 2, s.Size())
}
