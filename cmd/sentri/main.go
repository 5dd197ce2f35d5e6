// Copyright © by Sentri Authors 2024-2026. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// sentri: concurrent Microsoft 365 tenant-federation and MDI sensor
// discovery over a list of candidate domains.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/copyleftdev/sentri/internal/batch"
	"github.com/copyleftdev/sentri/internal/cache"
	"github.com/copyleftdev/sentri/internal/dnsprobe"
	"github.com/copyleftdev/sentri/internal/httpprobe"
	"github.com/copyleftdev/sentri/internal/logx"
	"github.com/copyleftdev/sentri/internal/probe"
	"github.com/copyleftdev/sentri/internal/ratelimit"
	"github.com/copyleftdev/sentri/internal/record"
	"github.com/copyleftdev/sentri/internal/retry"
	"github.com/copyleftdev/sentri/internal/settings"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

const (
	exitOK          = 0
	exitArgumentErr = 1
	exitIOErr       = 2
	exitRuntimeErr  = 3
)

var (
	g = color.New(color.FgHiGreen)
	r = color.New(color.FgHiRed)
	y = color.New(color.FgHiYellow)
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		concurrent = flag.Int("c", 0, "Maximum number of probes in flight per chunk")
		timeoutMS  = flag.Int("t", 0, "Per-request timeout in milliseconds")
		rateLimit  = flag.Int("r", 0, "Federation-lookup rate ceiling in requests/minute (0 = unlimited)")
		configPath = flag.String("config", "", "Path to an optional .ini configuration file")
		resolvers  = flag.String("resolvers", "", "Path to a file of DNS resolver addresses, one per line")
		logPath    = flag.String("log", "", "Path to a file that also receives log output")
		version    = flag.Bool("version", false, "Print the sentri version and exit")
	)
	flag.IntVar(concurrent, "concurrent", 0, "Alias for -c")
	flag.IntVar(timeoutMS, "timeout", 0, "Alias for -t")
	flag.IntVar(rateLimit, "rate-limit", 0, "Alias for -r")
	flag.CommandLine.Usage = func() {
		g.Fprintf(color.Error, "Usage: %s [options] <single|batch> [subcommand options]\n", path.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	if err := flag.CommandLine.Parse(args); err != nil {
		return exitArgumentErr
	}

	if *version {
		fmt.Println("sentri " + Version)
		return exitOK
	}
	httpprobe.Version = Version

	logger, runID, err := logx.New(logx.Config{LogFile: *logPath})
	if err != nil {
		r.Fprintf(color.Error, "failed to open log file: %v\n", err)
		return exitIOErr
	}
	logger.Info("starting run", "run_id", runID.String())

	s := settings.Defaults()
	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = settings.DefaultPath()
	}
	if cfgPath != "" {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			if loadErr := s.LoadFile(cfgPath); loadErr != nil {
				r.Fprintf(color.Error, "failed to load config file %s: %v\n", cfgPath, loadErr)
				return exitArgumentErr
			}
		}
	}
	if *concurrent > 0 {
		s.Concurrent = *concurrent
	}
	if *timeoutMS > 0 {
		s.TimeoutMS = *timeoutMS
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "r" || f.Name == "rate-limit" {
			s.RateLimit = *rateLimit
		}
	})
	if *resolvers != "" {
		list, rerr := readLines(*resolvers)
		if rerr != nil {
			r.Fprintf(color.Error, "failed to read resolvers file: %v\n", rerr)
			return exitIOErr
		}
		s.Resolvers = list
	}

	remaining := flag.Args()
	if len(remaining) == 0 {
		flag.CommandLine.Usage()
		return exitArgumentErr
	}

	prober := buildProber(s)

	switch remaining[0] {
	case "single":
		return runSingle(prober, remaining[1:])
	case "batch":
		return runBatch(prober, s, remaining[1:])
	default:
		r.Fprintf(color.Error, "unknown subcommand %q\n", remaining[0])
		flag.CommandLine.Usage()
		return exitArgumentErr
	}
}

func buildProber(s settings.Settings) *probe.Prober {
	httpCfg := httpprobe.DefaultConfig()
	if s.TimeoutMS > 0 {
		httpCfg.RequestTimeout = msToDuration(s.TimeoutMS)
	}

	var dnsOpts []dnsprobe.Option
	if len(s.Resolvers) > 0 {
		server := s.Resolvers[0]
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		dnsOpts = append(dnsOpts, dnsprobe.WithServer(server))
	}

	return &probe.Prober{
		HTTP:      httpprobe.New(httpCfg),
		DNS:       dnsprobe.NewResolver(dnsOpts...),
		RateLimit: ratelimit.New(s.RateLimit),
		Cache:     cache.New(0),
		Retry:     retry.NewPolicy(),
	}
}

func runSingle(p *probe.Prober, args []string) int {
	fs := flag.NewFlagSet("single", flag.ContinueOnError)
	domain := fs.String("d", "", "Domain to probe")
	if err := fs.Parse(args); err != nil {
		return exitArgumentErr
	}
	if *domain == "" {
		r.Fprintln(color.Error, "single requires -d <domain>")
		return exitArgumentErr
	}

	rec := p.Run(context.Background(), *domain)
	w := record.NewWriter(os.Stdout)
	if err := w.Write(rec); err != nil {
		r.Fprintf(color.Error, "failed to write output: %v\n", err)
		return exitIOErr
	}
	if rec.Failed() {
		y.Fprintf(color.Error, "%s: %s\n", rec.Domain, *rec.Error)
	} else {
		g.Fprintf(color.Error, "%s: tenant=%v mdi=%v\n", rec.Domain, derefOr(rec.Tenant, "?"), derefOr(rec.MDIInstance, "none"))
	}
	return exitOK
}

func runBatch(p *probe.Prober, s settings.Settings, args []string) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	inPath := fs.String("i", "", "Input file, one domain per line")
	outPath := fs.String("o", "", "Output file for JSONL records")
	chunkSize := fs.Int("s", 0, "Chunk size")
	if err := fs.Parse(args); err != nil {
		return exitArgumentErr
	}
	concurrent := s.Concurrent
	chunk := s.ChunkSize
	if *chunkSize > 0 {
		chunk = *chunkSize
	}
	if *inPath == "" || *outPath == "" {
		r.Fprintln(color.Error, "batch requires -i <input> and -o <output>")
		return exitArgumentErr
	}

	in, err := os.Open(*inPath)
	if err != nil {
		r.Fprintf(color.Error, "failed to open input: %v\n", err)
		return exitIOErr
	}
	defer in.Close()

	out, err := os.Create(*outPath)
	if err != nil {
		r.Fprintf(color.Error, "failed to create output: %v\n", err)
		return exitIOErr
	}
	defer out.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		y.Fprintln(color.Error, "interrupt received, draining in-flight probes...")
		cancel()
	}()

	engine := &batch.Engine{
		Prober: p,
		Progress: func(pr batch.ChunkProgress) {
			g.Fprintf(color.Error, "chunk %d: processed=%d errors=%d cache_hits=%d elapsed=%s\n",
				pr.ChunkIndex, pr.Processed, pr.Errors, pr.CacheHits, pr.Elapsed)
		},
	}

	writer := record.NewWriter(out)
	if err := engine.Run(ctx, in, writer, batch.Config{ChunkSize: chunk, Concurrent: concurrent}); err != nil {
		r.Fprintf(color.Error, "batch run ended with errors: %v\n", err)
		return exitRuntimeErr
	}
	return exitOK
}

func readLines(filePath string) ([]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out, scanner.Err()
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
