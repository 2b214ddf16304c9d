package protocol

// CommandType defines the type of the command (using uint8 for memory alignment and performance)
type CommandType uint8

// Command Type Numbering Strategy:
// - 0-50:  Query Commands (read-only)
// - 51+:   Trading Commands (mutating)
const (
	CmdUnknown    CommandType = 0
	CmdGetDepth   CommandType = 1
	CmdGetStats   CommandType = 2
	CmdBestBidAsk CommandType = 3
	CmdTradeLog   CommandType = 4

	CmdPlaceOrder  CommandType = 51
	CmdCancelOrder CommandType = 52
)

// Command is the standard carrier for commands entering the Engine.
type Command struct {
	// Version is the protocol version for backward compatibility.
	Version uint8 `json:"version"`

	// SeqID is used for ordering by the producer. The engine records the last one processed.
	SeqID uint64 `json:"seq_id"`

	// Type identifies the payload type for fast routing.
	Type CommandType `json:"type"`

	// Payload contains the serialized business data (e.g., JSON bytes of PlaceOrderCommand).
	Payload []byte `json:"payload"`

	// Metadata stores non-business context (e.g., Tracing ID, Source IP).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PlaceOrderCommand is the payload for placing a new order.
// Price is ignored for market orders.
type PlaceOrderCommand struct {
	Side      Side      `json:"side" yaml:"side"`
	OrderType OrderType `json:"order_type" yaml:"order_type"`
	Price     string    `json:"price,omitempty" yaml:"price,omitempty"` // Using string to prevent precision loss in JSON
	Quantity  int64     `json:"quantity" yaml:"quantity"`
}

// CancelOrderCommand is the payload for cancelling a resting order.
type CancelOrderCommand struct {
	OrderID uint64 `json:"order_id" yaml:"order_id"`
}

// GetDepthRequest is the payload for querying order book depth.
// Limit 0 returns every level.
type GetDepthRequest struct {
	Limit uint32 `json:"limit" yaml:"limit"`
}
