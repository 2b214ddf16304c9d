package match

const (
	// EngineVersion is the current version of the order book
	EngineVersion = "v1.0.0"

	// DefaultCommandBuffer is the capacity of the engine command channel.
	DefaultCommandBuffer = 4096
)
