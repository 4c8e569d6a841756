package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/ical"
	"github.com/cyp0633/libtodocal/internal/config"
	"github.com/cyp0633/libtodocal/recurrence"
	"github.com/cyp0633/libtodocal/scheduler"
	"github.com/cyp0633/libtodocal/service"
	"github.com/cyp0633/libtodocal/storage"
	"github.com/cyp0633/libtodocal/storage/memory"
	"github.com/cyp0633/libtodocal/storage/postgres"
)

const usage = `usage: todocal [-config path] <command> [flags]

commands:
  next     list schedule occurrences and todos in the coming days
  export   write every schedule and todo as an iCalendar file
  import   read schedules and todos from an iCalendar file
  serve    keep upcoming occurrences materialized until interrupted
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "todocal:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("todocal", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	configPath := global.String("config", defaultConfigPath(), "Path to config file")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	engine := recurrence.NewEngineWithConfig(cfg.EngineConfig(), recurrence.WithLogger(logger))
	defer engine.Close()

	svc := service.New(repo, service.WithLogger(logger), service.WithEngine(engine))
	a := &app{cfg: cfg, logger: logger, svc: svc}

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "next":
		return a.next(ctx, rest)
	case "export":
		return a.export(ctx, rest)
	case "import":
		return a.importFile(ctx, rest)
	case "serve":
		return a.serve(ctx, rest)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    *service.EventService
}

func (a *app) next(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("next", flag.ContinueOnError)
	days := fs.Int("days", 7, "Number of days to look ahead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loc := a.cfg.Location()
	now := time.Now().In(loc)
	rng := eventtime.RangeOf(now, now.AddDate(0, 0, *days))

	occurrences, err := a.svc.OccurrencesInRange(ctx, rng)
	if err != nil {
		return err
	}
	for _, occ := range occurrences {
		start := eventtime.ToTime(occ.Time.LowerBoundWithFixed(), loc)
		line := fmt.Sprintf("%s  %s", start.Format("Mon Jan 2 15:04"), occ.Schedule.Name)
		if occ.Time.Kind == eventtime.KindAllDay {
			line = fmt.Sprintf("%s  %s", start.Format("Mon Jan 2 (all day)"), occ.Schedule.Name)
		}
		if occ.Schedule.ShowTurn {
			line += fmt.Sprintf(" #%d", occ.Turn)
		}
		fmt.Println(line)
	}

	_, todos, err := a.svc.Export(ctx)
	if err != nil {
		return err
	}
	for _, todo := range todos {
		if todo.Time != nil && todo.Time.LowerBoundWithFixed() >= rng.Upper {
			continue
		}
		due := "no due date"
		if todo.Time != nil {
			due = "due " + eventtime.ToTime(todo.Time.LowerBoundWithFixed(), loc).Format("Mon Jan 2 15:04")
		}
		fmt.Printf("[ ] %s (%s)\n", todo.Name, due)
	}
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("o", "", "Output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	schedules, todos, err := a.svc.Export(ctx)
	if err != nil {
		return err
	}
	data, err := ical.NewCodec(ical.WithLogger(a.logger)).EncodeCalendar(schedules, todos)
	if err != nil {
		return err
	}

	if *out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	a.logger.Info("calendar exported", "path", *out, "schedules", len(schedules), "todos", len(todos))
	return nil
}

func (a *app) importFile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("import needs exactly one .ics file")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	schedules, todos, err := ical.NewCodec(ical.WithLogger(a.logger)).DecodeCalendar(f)
	if err != nil {
		return err
	}
	return a.svc.Import(ctx, schedules, todos)
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	spec := fs.String("spec", a.cfg.Scheduler.Spec, "Cron spec for materialization runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := scheduler.New(a.svc,
		scheduler.WithLogger(a.logger),
		scheduler.WithSpec(*spec),
		scheduler.WithHorizon(a.cfg.Horizon()),
		scheduler.WithTimeout(a.cfg.Timeout()),
		scheduler.WithLocation(a.cfg.Location()),
	)
	if err != nil {
		return err
	}

	if _, err := s.RunOnce(ctx); err != nil {
		a.logger.Warn("initial materialization failed", "error", err)
	}
	if err := s.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("signal received, shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout())
	defer cancel()
	return s.Stop(stopCtx)
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Repository, func(), error) {
	if cfg.Storage.Driver != config.DriverPostgres {
		logger.Warn("using in-memory storage; data is lost on exit")
		return memory.New(), func() {}, nil
	}

	store, err := postgres.Connect(ctx, cfg.Storage.DatabaseURL, postgres.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close(context.Background())
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var w io.Writer = os.Stderr
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func defaultConfigPath() string {
	if path := os.Getenv("TODOCAL_CONFIG"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "todocal.yaml"
	}
	return filepath.Join(dir, "todocal", "config.yaml")
}
