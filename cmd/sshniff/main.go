package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"sshniff/analyser"
	"sshniff/config"
	"sshniff/logging"
	"sshniff/pipeline"
	"sshniff/report"
)

var (
	file       = pflag.StringP("file", "f", "", "capture file (pcap or pcapng) or a directory of captures")
	nstream    = pflag.IntP("nstream", "n", -1, "analyse only this TCP stream")
	metaOnly   = pflag.BoolP("metaonly", "m", false, "only report session metadata and authentication events")
	keystrokes = pflag.BoolP("keystrokes", "k", false, "with --json, only output keystroke sequences")
	asJSON     = pflag.BoolP("json", "j", false, "output results as JSON")
	outputDir  = pflag.StringP("output-dir", "o", "", "write JSON results and plots to this directory")
	plots      = pflag.BoolP("plot", "p", false, "plot the data movement of every stream")
	configFile = pflag.StringP("config", "c", "", "YAML configuration file")
	workers    = pflag.IntP("workers", "w", 0, "streams analysed in parallel (default: number of CPUs)")
	logLevel   = pflag.String("log-level", "", "log level (default from config, else info)")
	logJSON    = pflag.Bool("log-json", false, "log as JSON")
	noColor    = pflag.Bool("no-color", false, "disable colored output")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s -f <capture|directory> [options]\n", os.Args[0])
	pflag.PrintDefaults()
	os.Exit(2)
}

func main() {
	pflag.Usage = usage
	pflag.Parse()

	if *file == "" {
		usage()
	}
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if pflag.CommandLine.Changed("log-level") {
		cfg.Logging.Level = *logLevel
	}
	if pflag.CommandLine.Changed("log-json") {
		cfg.Logging.JSON = *logJSON
	}
	log, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *noColor {
		color.NoColor = true
	}

	paths, err := pipeline.Discover(*file)
	if err != nil {
		log.WithError(err).Error("cannot open input")
		return 1
	}
	if len(paths) == 0 {
		log.WithField("dir", *file).Error("no capture files found")
		return 1
	}

	opts := pipeline.Options{
		Stream:  *nstream,
		Workers: *workers,
		Analysis: analyser.Options{
			MetaOnly:   *metaOnly,
			Thresholds: cfg.Thresholds(),
		},
		Progress:    term.IsTerminal(int(os.Stderr.Fd())),
		ProgressOut: os.Stderr,
	}
	if *plots {
		opts.PlotDir = *outputDir
		if opts.PlotDir == "" {
			opts.PlotDir = "."
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := pipeline.Run(ctx, paths, opts, log)
	if err != nil {
		log.WithError(err).Error("run interrupted")
	}
	if rep == nil {
		return 1
	}

	switch {
	case *asJSON && *outputDir != "":
		path, err := report.SaveJSON(*outputDir, rep, *keystrokes)
		if err != nil {
			log.WithError(err).Error("cannot save results")
			return 1
		}
		log.WithField("path", path).Info("results saved")
	case *asJSON:
		if err := report.WriteJSON(os.Stdout, rep, *keystrokes); err != nil {
			log.WithError(err).Error("cannot write results")
			return 1
		}
	default:
		report.NewConsole(color.Output, false).Print(rep)
	}

	if rep.SessionCount() == 0 {
		return 1
	}
	return 0
}
