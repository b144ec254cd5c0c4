package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"StockAction/internal/di"
	"StockAction/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", "repl", "build | train | repl | serve")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *mode, cfg); err != nil {
		log.Printf("%s failed: %v", *mode, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, mode string, cfg *config.Config) error {
	switch mode {
	case "build":
		builder, cleanup, err := di.InitializeBuilder(cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		rep, err := builder.Build(ctx, cfg.Dataset.Symbols)
		if err != nil {
			return err
		}
		fmt.Printf("Number of input columns: %d\nNumber of output columns: %d\nRows: %d\n",
			rep.InputColumns, rep.OutputColumns, rep.Rows)
		if len(rep.Failed) > 0 {
			fmt.Printf("Skipped symbols: %v\n", rep.Failed)
		}
		return nil

	case "train":
		trainer, cleanup, err := di.InitializeTrainer(cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		model, err := trainer.Train(ctx)
		if err != nil {
			return err
		}
		m := model.Manifest.Metrics
		fmt.Printf("Training Loss: %.4f  Training Accuracy: %.4f\n", m.TrainLoss, m.TrainAccuracy)
		fmt.Printf("Testing Loss: %.4f  Testing Accuracy: %.4f\n", m.TestLoss, m.TestAccuracy)
		return nil

	case "repl":
		session, cleanup, err := di.InitializeREPL(cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		return session.Run(ctx)

	case "serve":
		app, cleanup, err := di.InitializeApp(cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		return app.Run(ctx)

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}
