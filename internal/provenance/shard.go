package provenance

import "hash/fnv"

const numShards = 16

// ShardFor computes shard_id = hash(user_id) mod 16 using FNV-1a over the
// UTF-8 bytes of userID, a stable hash with no external dependency (see
// DESIGN.md for why FNV-1a was chosen over a fixed-key SipHash). This is
// deliberately NOT Go's built-in map hash, which is randomized per
// process and would make shard assignment non-reproducible.
func ShardFor(userID string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum64() % numShards)
}
