// Command gen-sample writes a synthetic Kepler-style training dataset.
//
//	gen-sample -n 300 -seed 42 -o data/nasa_exoplanets.csv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/config"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/dataset"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
)

func main() {
	cfg := config.Default()
	n := flag.Int("n", 300, "number of rows")
	seed := flag.Uint64("seed", 42, "random seed")
	out := flag.String("o", cfg.DatasetPath(), "output CSV path")
	flag.Parse()

	if *n < 1 {
		fmt.Fprintln(os.Stderr, "gen-sample: -n must be positive")
		os.Exit(2)
	}

	provider, err := log.NewZerologProvider(log.Config{Level: "info", Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "gen-sample: %v\n", err)
		os.Exit(1)
	}
	log.SetProvider(provider)
	logger := log.GetLoggerWithName("gen-sample")

	frame := dataset.Generate(*n, *seed)
	if err := frame.WriteFile(*out); err != nil {
		logger.Error("Failed to write dataset", err, log.DatasetPathKey, *out)
		os.Exit(1)
	}
	logger.Info("Sample dataset written",
		log.DatasetPathKey, *out,
		log.SamplesKey, frame.NRows(),
		log.FeaturesKey, frame.NCols()-1,
		log.RandomSeedKey, *seed,
	)
}
