package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"sigreplay/internal/capture"
	"sigreplay/internal/config"
	"sigreplay/internal/health"
	"sigreplay/internal/logging"
	"sigreplay/internal/metrics"
	"sigreplay/internal/pdf"
	"sigreplay/internal/record"
	"sigreplay/internal/render"
	"sigreplay/internal/timeline"
	"sigreplay/internal/watcher"
)

// session is the state built from one configuration.
type session struct {
	cfg      *config.Config
	log      *logging.Logger
	renderer *render.Renderer
}

func (a *app) resolveConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return config.FindConfigFile()
}

func (a *app) loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		var verrs config.ValidationErrors
		if !errors.As(err, &verrs) || verrs.HasErrors() {
			return nil, err
		}
		for _, w := range verrs.Warnings() {
			fmt.Fprintf(a.stderr, "Warning: %s\n", w.Error())
		}
	}
	return cfg, nil
}

func (a *app) newSession(cfg *config.Config) (*session, error) {
	lc, err := cfg.LoggerConfig()
	if err != nil {
		return nil, err
	}
	switch cfg.Logging.Output {
	case "", "stderr":
		lc.Writer = a.stderr
	}
	log, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logging.SetDefault(log)

	tc, err := timeline.NewConfig(cfg.TimelineOptions())
	if err != nil {
		log.Close()
		return nil, err
	}
	r, err := render.New(render.Options{
		Timeline:     tc,
		Style:        cfg.StyleOptions(),
		SVG:          cfg.SVGOptions(),
		UniquePrefix: cfg.Animation.UniquePrefix,
		Logger:       log,
		Metrics:      a.metrics,
	})
	if err != nil {
		log.Close()
		return nil, err
	}
	return &session{cfg: cfg, log: log, renderer: r}, nil
}

func (a *app) setup() (*session, error) {
	cfg, err := a.loadConfig(a.resolveConfigPath())
	if err != nil {
		return nil, err
	}
	return a.newSession(cfg)
}

func (s *session) loadRecord(path string) (record.Record, error) {
	groups, err := capture.LoadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err := s.cfg.Fitter().Fit(groups)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", path, err)
	}
	return rec, nil
}

// produce renders rec in the requested format.
func (s *session) produce(ctx context.Context, rec record.Record, format, title string) ([]byte, error) {
	if title == "" {
		title = s.cfg.Output.Title
	}

	switch format {
	case "pdf":
		var buf bytes.Buffer
		err := pdf.Write(&buf, rec, pdf.Options{Frame: s.cfg.SVGOptions(), Title: title, Created: time.Now()})
		return buf.Bytes(), err
	case "svg", "html":
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	out, err := s.renderer.Render(ctx, rec)
	if err != nil {
		return nil, err
	}
	if format == "html" {
		return render.HTML(out, title)
	}
	return out.Document, nil
}

func (a *app) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return os.Rename(tmp, path)
}

// parseInterspersed lets flags follow positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func oneArg(name string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: sigreplay %s <capture.json>", name)
	}
	return args[0], nil
}

func (a *app) cmdRender(args []string) error {
	fs := a.flagSet("render")
	output := fs.String("o", "", "output file (default stdout)")
	format := fs.String("format", "", "svg, html or pdf (default from config)")
	title := fs.String("title", "", "document title")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	input, err := oneArg("render", pos)
	if err != nil {
		return err
	}

	s, err := a.setup()
	if err != nil {
		return err
	}
	defer s.log.Close()

	if *format == "" {
		*format = s.cfg.Output.Format
	}
	rec, err := s.loadRecord(input)
	if err != nil {
		return err
	}
	data, err := s.produce(context.Background(), rec, *format, *title)
	if err != nil {
		return err
	}
	return a.writeOutput(*output, data)
}

func (a *app) cmdPDF(args []string) error {
	fs := a.flagSet("pdf")
	output := fs.String("o", "", "output file (default: input name with .pdf)")
	title := fs.String("title", "", "document title")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	input, err := oneArg("pdf", pos)
	if err != nil {
		return err
	}
	if *output == "" {
		*output = trimExt(input) + ".pdf"
	}

	s, err := a.setup()
	if err != nil {
		return err
	}
	defer s.log.Close()

	rec, err := s.loadRecord(input)
	if err != nil {
		return err
	}
	data, err := s.produce(context.Background(), rec, "pdf", *title)
	if err != nil {
		return err
	}
	return a.writeOutput(*output, data)
}

func trimExt(path string) string {
	return path[:len(path)-len(filepath.Ext(path))]
}

type inspectReport struct {
	Fingerprint string                            `json:"fingerprint"`
	Counts      record.Counts                     `json:"counts"`
	Policy      string                            `json:"drawing_mode"`
	Total       float64                           `json:"total_ms"`
	Allocations []timeline.Allocation             `json:"allocations"`
	Tracks      []trackReport                     `json:"tracks"`
	Adjustments []timeline.Adjustment             `json:"adjustments,omitempty"`
	Degenerate  []timeline.DegenerateTrackWarning `json:"degenerate,omitempty"`
}

type trackReport struct {
	Index        int     `json:"index"`
	Target       float64 `json:"target_ms"`
	WeightTotal  float64 `json:"weight_total"`
	Entries      int     `json:"entries"`
	LineDuration float64 `json:"line_ms"`
	Finish       float64 `json:"finish_ms"`
}

func (a *app) cmdInspect(args []string) error {
	fs := a.flagSet("inspect")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	input, err := oneArg("inspect", pos)
	if err != nil {
		return err
	}

	s, err := a.setup()
	if err != nil {
		return err
	}
	defer s.log.Close()

	rec, err := s.loadRecord(input)
	if err != nil {
		return err
	}
	tc, err := timeline.NewConfig(s.cfg.TimelineOptions())
	if err != nil {
		return err
	}
	res := timeline.Allocate(rec, tc)

	fp := rec.Fingerprint()
	report := inspectReport{
		Fingerprint: hex.EncodeToString(fp[:]),
		Counts:      rec.Counts(),
		Policy:      tc.Policy().String(),
		Total:       res.TotalDuration(),
		Allocations: res.Allocations,
		Adjustments: tc.Adjustments(),
		Degenerate:  res.Degenerate,
	}
	for _, t := range res.Tracks {
		report.Tracks = append(report.Tracks, trackReport{
			Index:        t.Index,
			Target:       t.Target,
			WeightTotal:  t.WeightTotal,
			Entries:      t.Entries,
			LineDuration: t.LineDuration,
			Finish:       t.Finish(),
		})
	}

	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printReport(a.stdout, report)
}

func printReport(w io.Writer, r inspectReport) error {
	fmt.Fprintf(w, "Fingerprint:  %s\n", r.Fingerprint[:16])
	fmt.Fprintf(w, "Entries:      %d lines, %d dots, %d segments\n", r.Counts.Lines, r.Counts.Dots, r.Counts.Segments)
	fmt.Fprintf(w, "Drawing mode: %s\n", r.Policy)
	fmt.Fprintf(w, "Total:        %.2f ms\n", r.Total)
	for _, adj := range r.Adjustments {
		fmt.Fprintf(w, "Adjusted:     %s\n", adj.String())
	}
	for _, d := range r.Degenerate {
		fmt.Fprintf(w, "Warning:      %s\n", d.Error())
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tTARGET\tWEIGHT\tENTRIES\tLINES\tFINISH")
	for _, t := range r.Tracks {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%d\t%.2f\t%.2f\n",
			t.Index, t.Target, t.WeightTotal, t.Entries, t.LineDuration, t.Finish)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ELEMENT\tROLE\tENTRY\tTRACK\tDELAY\tDURATION")
	for _, al := range r.Allocations {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%.2f\n",
			al.Ref, al.Role, al.Entry, al.Track, al.Delay, al.Duration)
	}
	return tw.Flush()
}

func (a *app) cmdValidate(args []string) error {
	fs := a.flagSet("validate")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	input, err := oneArg("validate", pos)
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig(a.resolveConfigPath())
	if err != nil {
		return err
	}
	groups, err := capture.LoadFile(input)
	if err != nil {
		return err
	}
	rec, err := cfg.Fitter().Fit(groups)
	if err != nil {
		return err
	}

	c := rec.Counts()
	var elapsed, length float64
	for _, e := range rec {
		elapsed += e.ElapsedTime
		length += e.TotalLength
	}
	fmt.Fprintf(a.stdout, "OK: %d point groups -> %d lines, %d dots, %d segments\n",
		len(groups), c.Lines, c.Dots, c.Segments)
	fmt.Fprintf(a.stdout, "Drawn length %.1f, captured time %.0f ms\n", length, elapsed)
	return nil
}

func (a *app) cmdInitConfig(args []string) error {
	fs := a.flagSet("init-config")
	force := fs.Bool("force", false, "overwrite an existing file")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	path := config.ConfigPath()
	switch len(pos) {
	case 0:
	case 1:
		path = pos[0]
	default:
		return fmt.Errorf("usage: sigreplay init-config [path]")
	}

	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %s\n", path)
	return nil
}

func (a *app) cmdWatch(args []string) error {
	fs := a.flagSet("watch")
	output := fs.String("o", "", "output file")
	format := fs.String("format", "", "svg, html or pdf (default from config)")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	input, err := oneArg("watch", pos)
	if err != nil {
		return err
	}
	if *output == "" {
		return fmt.Errorf("watch needs -o <output>")
	}

	registry := metrics.NewRegistry("sigreplay")
	a.metrics = metrics.NewRenderMetrics(registry)

	cfgPath := a.resolveConfigPath()
	s, err := a.setup()
	if err != nil {
		return err
	}
	// Loggers replaced by a reload stay open until watch returns; the
	// status server keeps writing through the first one.
	var retired []*logging.Logger
	defer func() {
		s.log.Close()
		for _, l := range retired {
			l.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		lastErrMu sync.Mutex
		lastErr   error
	)
	checker := health.NewChecker()
	checker.RegisterFunc("capture", true, health.FileCheck(input))
	checker.RegisterFunc("render", false, health.ErrorCheck(func() error {
		lastErrMu.Lock()
		defer lastErrMu.Unlock()
		return lastErr
	}))

	if addr := s.cfg.Watch.MetricsAddr; addr != "" {
		srv := newStatusServer(addr, registry, checker)
		serveStatus(srv, s.log.WithComponent("status"))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		s.log.Info("serving metrics", "addr", addr)
	}

	renderOnce := func() {
		err := s.log.Guard(s.cfg.Watch.CrashDir, "render", map[string]string{"capture": input}, func() error {
			f := *format
			if f == "" {
				f = s.cfg.Output.Format
			}
			rec, err := s.loadRecord(input)
			if err != nil {
				return err
			}
			data, err := s.produce(ctx, rec, f, "")
			if err != nil {
				return err
			}
			return a.writeOutput(*output, data)
		})
		lastErrMu.Lock()
		lastErr = err
		lastErrMu.Unlock()
		if err != nil {
			s.log.Error("render failed", "capture", input, "error", err)
			return
		}
		s.log.Info("rendered", "capture", input, "output", *output)
	}

	w, err := watcher.New([]string{input}, time.Duration(s.cfg.Watch.DebounceMs)*time.Millisecond)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	reloaded := make(chan *config.Config, 1)
	var loaderErrs <-chan error
	if cfgPath != "" {
		loader := config.NewLoader(cfgPath)
		if _, err := loader.Load(); err != nil {
			return err
		}
		loader.OnChange(func(_, next *config.Config) {
			select {
			case reloaded <- next:
			default:
			}
		})
		if err := loader.Watch(); err != nil {
			return err
		}
		defer loader.Close()
		loaderErrs = loader.Errors()
	}

	renderOnce()
	s.log.Info("watching", "capture", input, "config", cfgPath)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping")
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			s.log.Debug("capture changed", "path", ev.Path, "size", ev.Size)
			renderOnce()

		case err := <-w.Errors():
			s.log.Warn("watch error", "error", err)

		case next := <-reloaded:
			if a.logLevel != "" {
				next.Logging.Level = a.logLevel
			}
			ns, err := a.newSession(next)
			if err != nil {
				s.log.Error("config reload rejected", "error", err)
				continue
			}
			a.metrics.RecordReload()
			s.log.Info("config reloaded", "path", cfgPath)
			retired = append(retired, s.log)
			s = ns
			renderOnce()

		case err := <-loaderErrs:
			s.log.Warn("config reload failed", "error", err)
		}
	}
}

func newStatusServer(addr string, registry *metrics.Registry, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.HTTPHandler())
	mux.Handle("/healthz", checker.HealthHandler())
	mux.Handle("/livez", checker.LivenessHandler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// serveStatus runs srv in the background and reports a failed listener
// through log.
func serveStatus(srv *http.Server, log *logging.Logger) {
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status server failed", "addr", srv.Addr, "error", err)
		}
	}()
}
