package session

// Option applies a configuration option to the sharded store.
type Option func(*shardedStore)

// WithShards sets the number of independently locked shards. Values below
// one are ignored.
func WithShards(n int) Option {
	return func(s *shardedStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}
