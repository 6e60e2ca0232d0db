package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/ternmail/tern/internal/app"
	"github.com/ternmail/tern/internal/config"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.tern/config.toml)")
	verboseFlag := flag.Bool("verbose", false, "log debug output to stderr")
	initFlag := flag.Bool("init", false, "write a default config and exit")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	if *initFlag {
		if err := config.Save(configPath, config.Default(config.DefaultDir())); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s, fill in account settings\n", configPath)
		return
	}

	fxApp := fx.New(
		app.Module(app.Params{ConfigPath: configPath, Verbose: *verboseFlag}),
		fx.NopLogger,
	)

	fxApp.Run()
}
