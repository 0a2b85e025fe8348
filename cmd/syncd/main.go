package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sequoiaprint/keka-integrations/pkg/app"
	"github.com/sequoiaprint/keka-integrations/pkg/app/syncd"
	"github.com/sequoiaprint/keka-integrations/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = syncd.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Sync daemon failed: %v\n", err)
		os.Exit(1)
	}
}
