package vault

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/cartridge/trajectory/internal/chunk"
	"github.com/cartridge/trajectory/internal/reassembly"
	"github.com/cartridge/trajectory/internal/types"
)

// LoadEpisodes reads every shard under dir in reassembly order, decodes the
// chunk records and stitches them back into full episodes. A schema mismatch
// aborts the shard and surfaces to the caller; ingestion of that shard is
// not retried.
func LoadEpisodes(
	ctx context.Context,
	logger zerolog.Logger,
	dir string,
	dec *chunk.Decoder,
	reasm *reassembly.Reassembler,
) ([]types.Episode, error) {
	shards, err := ListShards(dir)
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("vault: no shards found under %s", dir)
	}

	var episodes []types.Episode
	for _, path := range shards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := ingestShard(path, dec, reasm, &episodes)
		if err != nil {
			return nil, fmt.Errorf("vault: shard %s: %w", path, err)
		}
		logger.Debug().Str("shard", path).Int("chunks", n).Msg("shard ingested")
	}
	if ep := reasm.Flush(); ep != nil {
		logger.Warn().
			Str("episode", ep.ID).
			Int("length", ep.Length()).
			Msg("recovered unterminated trailing episode")
		episodes = append(episodes, *ep)
	}

	logger.Info().
		Int("shards", len(shards)).
		Int("episodes", len(episodes)).
		Msg("vault ingested")
	return episodes, nil
}

func ingestShard(path string, dec *chunk.Decoder, reasm *reassembly.Reassembler, episodes *[]types.Episode) (int, error) {
	r, err := chunk.OpenShard(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	chunks := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		c, err := dec.Decode(rec)
		if err != nil {
			return chunks, err
		}
		ep, err := reasm.Push(c)
		if err != nil {
			return chunks, err
		}
		if ep != nil {
			*episodes = append(*episodes, *ep)
		}
		chunks++
	}
}
