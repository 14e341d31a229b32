package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// ProbeCache stores Found probe results as hashes under
// vault:probe:<factory>:<partition key>. Entries never expire: once a
// factory has a vault for a key it always does.
type ProbeCache struct {
	c       *Client
	factory string
}

// NewProbeCache creates a ProbeCache for vaults of factory backed by c.
func NewProbeCache(c *Client, factory common.Address) *ProbeCache {
	return &ProbeCache{c: c, factory: strings.ToLower(factory.Hex())}
}

func (pc *ProbeCache) entryKey(key domain.PartitionKey) string {
	return pc.c.key("vault", "probe", pc.factory, key.String())
}

func (pc *ProbeCache) Get(ctx context.Context, key domain.PartitionKey) (domain.ProbeResult, bool, error) {
	fields, err := pc.c.rdb.HGetAll(ctx, pc.entryKey(key)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(fields) == 0) {
		return domain.ProbeResult{}, false, nil
	}
	if err != nil {
		return domain.ProbeResult{}, false, fmt.Errorf("redis: get probe %s: %w", key, err)
	}

	vault, yes, no := fields["vault"], fields["yes"], fields["no"]
	if !common.IsHexAddress(vault) || !common.IsHexAddress(yes) || !common.IsHexAddress(no) {
		return domain.ProbeResult{}, false, fmt.Errorf("redis: probe %s: corrupt entry", key)
	}
	return domain.Found(fields["strategy"], common.HexToAddress(vault), domain.OutcomeTokenPair{
		Yes: common.HexToAddress(yes),
		No:  common.HexToAddress(no),
	}), true, nil
}

// Put stores res when it is Found and ignores anything else.
func (pc *ProbeCache) Put(ctx context.Context, key domain.PartitionKey, res domain.ProbeResult) error {
	if res.Status != domain.ProbeFound {
		return nil
	}
	err := pc.c.rdb.HSet(ctx, pc.entryKey(key),
		"vault", res.Vault.Hex(),
		"yes", res.Outcomes.Yes.Hex(),
		"no", res.Outcomes.No.Hex(),
		"strategy", res.Strategy,
	).Err()
	if err != nil {
		return fmt.Errorf("redis: put probe %s: %w", key, err)
	}
	return nil
}

var _ domain.ProbeCache = (*ProbeCache)(nil)
