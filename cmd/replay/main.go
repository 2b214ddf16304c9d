package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	match "github.com/0x5487/limit-order-book"
	"github.com/0x5487/limit-order-book/protocol"
	"github.com/rs/zerolog"
)

type output struct {
	Step   int    `json:"step"`
	Op     string `json:"op"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	scenarioPath := flag.String("scenario", "", "path to scenario file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg := match.DefaultConfig()
	if *configPath != "" {
		loaded, err := match.LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		cfg = loaded
	}
	log = log.Level(cfg.LogLevel())
	match.SetLogger(log.With().Str("component", "orderbook").Logger())

	if *scenarioPath == "" {
		log.Fatal().Msg("-scenario is required")
	}
	scenario, err := loadScenario(*scenarioPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *scenarioPath).Msg("load scenario")
	}

	events := match.NewMemoryPublishLog()
	trace := match.PublishLogFunc(func(logs ...*match.BookLog) {
		for _, l := range logs {
			log.Debug().Uint64("seq_id", l.SequenceID).Str("type", string(l.Type)).Uint64("order_id", l.OrderID).
				Str("price", l.Price.String()).Int64("qty", l.Quantity).Msg("book event")
		}
	})
	opts := append(cfg.BookOptions(), match.WithPublishLog(match.Tee(events, trace)))
	book := match.NewOrderBook(opts...)
	engine := match.NewEngine(book, cfg.EngineOptions()...)
	engine.Start()

	ctx := context.Background()
	serializer := protocol.JSONSerializer{}
	enc := json.NewEncoder(os.Stdout)

	for i, step := range scenario.Steps {
		out := output{Step: i, Op: step.Op}

		cmd, err := step.command(serializer, uint64(i+1), cfg.Book.DefaultDepth)
		if err == nil {
			out.Result, err = engine.Execute(ctx, cmd)
		}
		if err != nil {
			out.Result = nil
			out.Error = err.Error()
			log.Warn().Err(err).Int("step", i).Str("op", step.Op).Msg("step failed")
		}

		if err := enc.Encode(out); err != nil {
			log.Fatal().Err(err).Msg("write result")
		}
	}

	if err := verifyAggregated(ctx, engine, events); err != nil {
		log.Error().Err(err).Msg("aggregated depth diverged")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Uint64("last_cmd_seq_id", engine.LastCmdSeqID()).Int("steps", len(scenario.Steps)).Msg("replay finished")
}
