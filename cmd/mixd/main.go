package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/mixdesk/internal/daemon"
	"github.com/matheus3301/mixdesk/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	configFlag := flag.String("config", "", "config file path (default ~/.mixdesk/config.toml)")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: name, ConfigPath: *configFlag}),
	)

	app.Run()
}
