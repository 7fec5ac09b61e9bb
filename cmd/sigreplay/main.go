// sigreplay turns a captured signature into an SVG that redraws itself.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"sigreplay/internal/metrics"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app carries the global options and output streams shared by every
// command.
type app struct {
	configPath string
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer

	// metrics is set by long-running commands.
	metrics *metrics.RenderMetrics
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}

	fs := flag.NewFlagSet("sigreplay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&a.configPath, "config", "", "path to config file")
	fs.StringVar(&a.logLevel, "log-level", "", "override the configured log level")
	fs.Usage = func() { a.usage() }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() < 1 {
		a.usage()
		return 1
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]

	var err error
	switch cmd {
	case "render":
		err = a.cmdRender(rest)
	case "pdf":
		err = a.cmdPDF(rest)
	case "inspect":
		err = a.cmdInspect(rest)
	case "validate":
		err = a.cmdValidate(rest)
	case "watch":
		err = a.cmdWatch(rest)
	case "init-config":
		err = a.cmdInitConfig(rest)
	case "help":
		a.usage()
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		a.usage()
		return 1
	}

	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) usage() {
	fmt.Fprintln(a.stderr, `sigreplay - Replay captured signatures as animated SVG

Usage: sigreplay [options] <command> [args]

Commands:
  render <capture.json>       Write an animated SVG (or HTML preview with -format html)
  pdf <capture.json>          Write the finished signature as a PDF
  inspect <capture.json>      Print the timeline: per-element delays and track summaries
  validate <capture.json>     Check a capture document and report its contents
  watch <capture.json>        Re-render whenever the capture or config file changes
  init-config [path]          Write a default config file
  help                        Show this help message

Options:
  -config <path>     Path to config file (default: ./config.toml or the user config dir)
  -log-level <lvl>   debug, info, warn or error`)
}
