package main

import (
	"context"
	"fmt"
	"os"

	match "github.com/0x5487/limit-order-book"
	"github.com/0x5487/limit-order-book/protocol"
	"gopkg.in/yaml.v3"
)

// Step is one operation of a replay scenario.
type Step struct {
	Op       string        `yaml:"op"` // limit, market, cancel, snapshot, stats, bbo, trades
	Side     protocol.Side `yaml:"side"`
	Price    string        `yaml:"price"`
	Quantity int64         `yaml:"quantity"`
	OrderID  uint64        `yaml:"order_id"`
	Depth    uint32        `yaml:"depth"`
}

// Scenario is an ordered list of steps.
type Scenario struct {
	Steps []Step `yaml:"steps"`
}

func loadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseScenario(data)
}

func parseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// command converts a step into a protocol command numbered seqID.
func (s Step) command(serializer protocol.Serializer, seqID uint64, defaultDepth int) (*protocol.Command, error) {
	cmd := &protocol.Command{Version: 1, SeqID: seqID}

	var payload any
	switch s.Op {
	case "limit":
		cmd.Type = protocol.CmdPlaceOrder
		payload = protocol.PlaceOrderCommand{Side: s.Side, OrderType: protocol.OrderTypeLimit, Price: s.Price, Quantity: s.Quantity}
	case "market":
		cmd.Type = protocol.CmdPlaceOrder
		payload = protocol.PlaceOrderCommand{Side: s.Side, OrderType: protocol.OrderTypeMarket, Quantity: s.Quantity}
	case "cancel":
		cmd.Type = protocol.CmdCancelOrder
		payload = protocol.CancelOrderCommand{OrderID: s.OrderID}
	case "snapshot":
		cmd.Type = protocol.CmdGetDepth
		depth := s.Depth
		if depth == 0 && defaultDepth > 0 {
			depth = uint32(defaultDepth)
		}
		payload = protocol.GetDepthRequest{Limit: depth}
	case "stats":
		cmd.Type = protocol.CmdGetStats
	case "bbo":
		cmd.Type = protocol.CmdBestBidAsk
	case "trades":
		cmd.Type = protocol.CmdTradeLog
	default:
		return nil, fmt.Errorf("unknown op %q", s.Op)
	}

	if payload != nil {
		data, err := serializer.Marshal(payload)
		if err != nil {
			return nil, err
		}
		cmd.Payload = data
	}
	return cmd, nil
}

// verifyAggregated rebuilds depth from the published events and compares it
// with the engine's own snapshot.
func verifyAggregated(ctx context.Context, engine *match.Engine, events *match.MemoryPublishLog) error {
	agg := match.NewAggregatedBook()
	for _, l := range events.Logs() {
		if err := agg.Replay(l); err != nil {
			return err
		}
	}

	want, err := engine.Snapshot(ctx, 0)
	if err != nil {
		return err
	}
	got := agg.Snapshot(0)
	if err := sameLevels("asks", want.Asks, got.Asks); err != nil {
		return err
	}
	return sameLevels("bids", want.Bids, got.Bids)
}

func sameLevels(name string, want, got []*match.DepthItem) error {
	if len(want) != len(got) {
		return fmt.Errorf("%s: book has %d levels, events rebuild %d", name, len(want), len(got))
	}
	for i := range want {
		if !want[i].Price.Equal(got[i].Price) || want[i].Quantity != got[i].Quantity {
			return fmt.Errorf("%s level %d: book %s/%d, events %s/%d", name, i, want[i].Price, want[i].Quantity, got[i].Price, got[i].Quantity)
		}
	}
	return nil
}
