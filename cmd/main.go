package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.2.0"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:    "verilogai",
		Usage:   "Verilog/SystemVerilog assistant backed by Gemini",
		Version: version,
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./verilogai.toml when present)",
				EnvVars: []string{"VERILOGAI_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			lambdaCommand(),
			analyzeCommand(),
			configCommand(),
		},
	}
}
