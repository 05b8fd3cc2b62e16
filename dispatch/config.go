package dispatch

const defaultMaxPayloadBytes = 4 << 20

// Config holds dispatcher parameters.
type Config struct {
	// MaxPayloadBytes bounds how much of a request body is read. Larger
	// bodies are rejected as bad requests.
	MaxPayloadBytes int64 `json:"max_payload_bytes,omitempty" yaml:"max_payload_bytes,omitempty" env:"REMOTING_MAX_PAYLOAD_BYTES"`
}

// DefaultConfig returns a Config with a 4 MiB payload limit.
func DefaultConfig() Config {
	return Config{MaxPayloadBytes: defaultMaxPayloadBytes}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxPayloadBytes > 0 {
		c.MaxPayloadBytes = source.MaxPayloadBytes
	}
}
