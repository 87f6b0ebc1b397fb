package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wsd/internal/di"
	"wsd/internal/structures"
)

func parseFlags() *structures.CliFlags {
	flags := &structures.CliFlags{}
	flag.StringVar(&flags.ConfigPath, "config", "config/config.yaml", "path to the YAML configuration file")
	flag.BoolVar(&flags.DebugMode, "debug", false, "echo logs to the console")
	flag.Parse()
	return flags
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_, cleanup, err := di.InitApp(parseFlags())
	if err != nil {
		log.Fatal().Err(err).Msg("wsd stopped")
	}
	cleanup()
}
