package match

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/0x5487/limit-order-book/protocol"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCommandBuffer sets the capacity of the command channel.
func WithCommandBuffer(size int) EngineOption {
	return func(engine *Engine) {
		if size > 0 {
			engine.cmdChan = make(chan command, size)
		}
	}
}

// WithSerializer sets the payload codec used by Execute.
func WithSerializer(s protocol.Serializer) EngineOption {
	return func(engine *Engine) {
		engine.serializer = s
	}
}

type placeRequest struct {
	side     Side
	kind     PriceKind
	quantity int64
}

type command struct {
	typ     protocol.CommandType
	seqID   uint64
	payload any
	resp    chan response
}

// mutates reports whether the command changes the book. Once queued such a
// command always runs, so its caller waits for the outcome.
func (cmd command) mutates() bool {
	return cmd.typ == protocol.CmdPlaceOrder || cmd.typ == protocol.CmdCancelOrder
}

type response struct {
	data any
	err  error
}

// Engine serializes every operation on one OrderBook through a single consumer
// goroutine, so callers on any goroutine observe a total order of operations.
//
// ctx bounds how long a caller waits to enqueue. Reads also give up waiting
// for the answer when ctx ends. Submits and cancels never do: ErrTimeout from
// them means the command was not queued and did not run.
type Engine struct {
	book         *OrderBook
	cmdChan      chan command
	t            tomb.Tomb
	isStarted    atomic.Bool
	isShutdown   atomic.Bool
	lastCmdSeqID atomic.Uint64
	serializer   protocol.Serializer
}

// NewEngine creates an engine that owns book. Call Start before use.
func NewEngine(book *OrderBook, opts ...EngineOption) *Engine {
	engine := &Engine{
		book:       book,
		cmdChan:    make(chan command, DefaultCommandBuffer),
		serializer: protocol.JSONSerializer{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Start launches the command loop. It is a no-op after Start or Shutdown.
func (engine *Engine) Start() {
	if engine.isShutdown.Load() || !engine.isStarted.CompareAndSwap(false, true) {
		return
	}
	logger.Info().Str("session_id", engine.book.SessionID()).Str("version", EngineVersion).Msg("engine started")
	engine.t.Go(engine.run)
}

// Shutdown stops accepting commands, processes everything already queued and
// waits for the loop to exit or ctx to finish.
func (engine *Engine) Shutdown(ctx context.Context) error {
	if engine.isShutdown.CompareAndSwap(false, true) {
		engine.t.Kill(nil)
		// never started: answer whatever was queued and let the tomb die
		if engine.isStarted.CompareAndSwap(false, true) {
			engine.t.Go(engine.drain)
		}
	}

	select {
	case <-engine.t.Dead():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the reason the loop stopped, or nil while it is running or after
// a clean shutdown.
func (engine *Engine) Err() error {
	err := engine.t.Err()
	if errors.Is(err, tomb.ErrStillAlive) {
		return nil
	}
	return err
}

// LastCmdSeqID returns the sequence ID of the last processed protocol command.
func (engine *Engine) LastCmdSeqID() uint64 {
	return engine.lastCmdSeqID.Load()
}

// SubmitLimitOrder places a limit order.
func (engine *Engine) SubmitLimitOrder(ctx context.Context, side Side, price decimal.Decimal, quantity int64) (*SubmissionResult, error) {
	return engine.submit(ctx, 0, placeRequest{side: side, kind: LimitPrice(price), quantity: quantity})
}

// SubmitMarketOrder places a market order.
func (engine *Engine) SubmitMarketOrder(ctx context.Context, side Side, quantity int64) (*SubmissionResult, error) {
	return engine.submit(ctx, 0, placeRequest{side: side, kind: MarketPrice(), quantity: quantity})
}

// CancelOrder cancels a resting order.
func (engine *Engine) CancelOrder(ctx context.Context, orderID uint64) (CancelResult, error) {
	data, err := engine.call(ctx, command{typ: protocol.CmdCancelOrder, payload: orderID})
	if err != nil {
		return CancelResult{OrderID: orderID}, err
	}
	return data.(CancelResult), nil
}

// BestBidAsk returns the best bid and ask.
func (engine *Engine) BestBidAsk(ctx context.Context) (BBO, error) {
	data, err := engine.call(ctx, command{typ: protocol.CmdBestBidAsk})
	if err != nil {
		return BBO{}, err
	}
	return data.(BBO), nil
}

// Snapshot returns the aggregated depth; depth <= 0 returns every level.
func (engine *Engine) Snapshot(ctx context.Context, depth int) (*Depth, error) {
	data, err := engine.call(ctx, command{typ: protocol.CmdGetDepth, payload: depth})
	if err != nil {
		return nil, err
	}
	return data.(*Depth), nil
}

// TradeLog returns a copy of all trades recorded so far.
func (engine *Engine) TradeLog(ctx context.Context) ([]Trade, error) {
	data, err := engine.call(ctx, command{typ: protocol.CmdTradeLog})
	if err != nil {
		return nil, err
	}
	return data.([]Trade), nil
}

// Stats returns level and order counts.
func (engine *Engine) Stats(ctx context.Context) (BookStats, error) {
	data, err := engine.call(ctx, command{typ: protocol.CmdGetStats})
	if err != nil {
		return BookStats{}, err
	}
	return data.(BookStats), nil
}

// Execute decodes a protocol command and runs it. The result type follows the
// command: *SubmissionResult, *protocol.CancelOrderResponse,
// *protocol.GetDepthResponse, BookStats, BBO or []Trade.
func (engine *Engine) Execute(ctx context.Context, cmd *protocol.Command) (any, error) {
	internal := command{typ: cmd.Type, seqID: cmd.SeqID}

	switch cmd.Type {
	case protocol.CmdPlaceOrder:
		var payload protocol.PlaceOrderCommand
		if err := engine.serializer.Unmarshal(cmd.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParam, protocol.RejectReasonInvalidPayload, err)
		}
		req, err := toPlaceRequest(&payload)
		if err != nil {
			return nil, err
		}
		return engine.submit(ctx, cmd.SeqID, req)
	case protocol.CmdCancelOrder:
		var payload protocol.CancelOrderCommand
		if err := engine.serializer.Unmarshal(cmd.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParam, protocol.RejectReasonInvalidPayload, err)
		}
		internal.payload = payload.OrderID
	case protocol.CmdGetDepth:
		var payload protocol.GetDepthRequest
		if len(cmd.Payload) > 0 {
			if err := engine.serializer.Unmarshal(cmd.Payload, &payload); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParam, protocol.RejectReasonInvalidPayload, err)
			}
		}
		internal.payload = int(payload.Limit)
	case protocol.CmdGetStats, protocol.CmdBestBidAsk, protocol.CmdTradeLog:
	default:
		return nil, fmt.Errorf("%w: unknown command type %d", ErrInvalidParam, cmd.Type)
	}

	data, err := engine.call(ctx, internal)
	if err != nil {
		return nil, err
	}

	switch v := data.(type) {
	case CancelResult:
		return v.Response(), nil
	case *Depth:
		return v.Response(), nil
	}
	return data, nil
}

func toPlaceRequest(payload *protocol.PlaceOrderCommand) (placeRequest, error) {
	req := placeRequest{side: payload.Side, quantity: payload.Quantity}

	switch payload.OrderType {
	case protocol.OrderTypeMarket:
		req.kind = MarketPrice()
	case protocol.OrderTypeLimit:
		price, err := decimal.NewFromString(payload.Price)
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
		}
		req.kind = LimitPrice(price)
	default:
		return req, fmt.Errorf("%w: unknown order type %q", ErrInvalidParam, payload.OrderType)
	}

	return req, nil
}

func (engine *Engine) submit(ctx context.Context, seqID uint64, req placeRequest) (*SubmissionResult, error) {
	// Validate on the caller's goroutine so bad input never occupies the loop.
	if err := validateOrder(req.side, req.kind, req.quantity); err != nil {
		return nil, err
	}

	data, err := engine.call(ctx, command{typ: protocol.CmdPlaceOrder, seqID: seqID, payload: req})
	if err != nil {
		return nil, err
	}
	return data.(*SubmissionResult), nil
}

func (engine *Engine) call(ctx context.Context, cmd command) (any, error) {
	if engine.isShutdown.Load() {
		return nil, ErrShutdown
	}

	cmd.resp = make(chan response, 1)

	if ctx.Err() != nil {
		return nil, ErrTimeout
	}
	select {
	case engine.cmdChan <- cmd:
	case <-engine.t.Dying():
		return nil, engine.stoppedErr()
	case <-ctx.Done():
		return nil, ErrTimeout
	}

	// a nil channel never fires, so mutations wait for their own outcome
	var deadline <-chan struct{}
	if !cmd.mutates() {
		deadline = ctx.Done()
	}

	select {
	case r := <-cmd.resp:
		return r.data, r.err
	case <-engine.t.Dead():
		// The loop may have answered just before exiting.
		select {
		case r := <-cmd.resp:
			return r.data, r.err
		default:
		}
		return nil, engine.stoppedErr()
	case <-deadline:
		return nil, ErrTimeout
	}
}

func (engine *Engine) stoppedErr() error {
	var violation *InvariantViolation
	if errors.As(engine.t.Err(), &violation) {
		return fmt.Errorf("%w: %v", ErrHalted, violation)
	}
	return ErrShutdown
}

func (engine *Engine) run() error {
	for {
		select {
		case <-engine.t.Dying():
			return engine.drain()
		case cmd := <-engine.cmdChan:
			if err := engine.process(cmd); err != nil {
				return err
			}
		}
	}
}

// drain processes all remaining commands in the channel before returning.
func (engine *Engine) drain() error {
	for {
		select {
		case cmd := <-engine.cmdChan:
			if err := engine.process(cmd); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// process runs one command to completion. An invariant violation stops the
// loop for good; the book is not trusted afterwards.
func (engine *Engine) process(cmd command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			violation, ok := r.(*InvariantViolation)
			if !ok {
				panic(r)
			}
			logger.Error().Str("session_id", engine.book.SessionID()).Err(violation).Msg("engine halted")
			cmd.resp <- response{err: fmt.Errorf("%w: %v", ErrHalted, violation)}
			err = violation
		}
	}()

	var res response
	book := engine.book

	switch cmd.typ {
	case protocol.CmdPlaceOrder:
		req, _ := cmd.payload.(placeRequest)
		res.data, res.err = book.Submit(req.side, req.kind, req.quantity)
	case protocol.CmdCancelOrder:
		orderID, _ := cmd.payload.(uint64)
		res.data = book.Cancel(orderID)
	case protocol.CmdGetDepth:
		depth, _ := cmd.payload.(int)
		res.data = book.Snapshot(depth)
	case protocol.CmdGetStats:
		res.data = book.Stats()
	case protocol.CmdBestBidAsk:
		res.data = book.BestBidAsk()
	case protocol.CmdTradeLog:
		res.data = book.Trades()
	default:
		res.err = fmt.Errorf("%w: unknown command type %d", ErrInvalidParam, cmd.typ)
	}

	if cmd.seqID > 0 {
		engine.lastCmdSeqID.Store(cmd.seqID)
	}

	cmd.resp <- res
	return nil
}
