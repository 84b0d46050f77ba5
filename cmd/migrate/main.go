package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/clientpulse/backend/internal/infrastructure/config"
	"github.com/clientpulse/backend/internal/infrastructure/logger"
	"github.com/clientpulse/backend/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const defaultMigrationsDir = "migrations"

// The migrate command is the only way schema changes reach a ClientPulse
// database; the worker never auto-migrates. Most subcommands talk to
// postgres, but create and list only touch the migrations directory, so
// they work without a database and without any environment set up.
func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// migrateTool holds the state every subcommand shares. The Before hook
// fills it in once flags are parsed.
type migrateTool struct {
	log *zap.Logger
	dir string
}

func newApp() *cli.App {
	t := &migrateTool{}

	return &cli.App{
		Name:  "migrate",
		Usage: "Manage the ClientPulse database schema",
		Description: "Connection settings come from the CLIENTPULSE_DATABASE_* environment\n" +
			"variables (HOST, PORT, USER, PASSWORD, DBNAME, SSLMODE). The create and\n" +
			"list commands run offline and only need the migrations directory.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "migrations directory (default: ./migrations)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "log verbosity: debug, info, warn or error",
			},
		},
		Before:   t.setup,
		After:    t.teardown,
		Commands: t.commands(),
	}
}

// setup builds the logger and resolves the migrations directory before any
// subcommand runs.
func (t *migrateTool) setup(c *cli.Context) error {
	logCfg := logger.DefaultConfig()
	logCfg.Level = c.String("log-level")
	// Migrations are run from a terminal, so timestamps are for humans,
	// not log shippers.
	logCfg.TimeFormat = "2006-01-02 15:04:05"

	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	t.log = log

	dir, err := resolveMigrationsDir(c.String("path"))
	if err != nil {
		return fmt.Errorf("failed to resolve migrations directory: %w", err)
	}
	t.dir = dir
	t.log.Debug("Using migrations directory", zap.String("dir", dir))

	return nil
}

func (t *migrateTool) teardown(*cli.Context) error {
	if t.log != nil {
		_ = logger.Sync(t.log)
	}
	return nil
}

func (t *migrateTool) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "up",
			Usage: "Apply all pending migrations",
			Action: func(*cli.Context) error {
				return t.withMigrator(func(m *migration.Migrator) error {
					return m.Up()
				})
			},
		},
		{
			Name:  "down",
			Usage: "Roll back all applied migrations",
			Action: func(*cli.Context) error {
				return t.withMigrator(func(m *migration.Migrator) error {
					return m.Down()
				})
			},
		},
		{
			Name:      "step",
			Usage:     "Apply n migrations; a negative n rolls back",
			ArgsUsage: "<n>",
			// Raw args, otherwise a negative count parses as a flag.
			SkipFlagParsing: true,
			Action: func(c *cli.Context) error {
				n, err := strconv.Atoi(c.Args().First())
				if err != nil {
					return fmt.Errorf("step wants a count, got %q", c.Args().First())
				}
				return t.withMigrator(func(m *migration.Migrator) error {
					return m.Steps(n)
				})
			},
		},
		{
			Name:      "goto",
			Usage:     "Migrate up or down until the schema sits at the given version",
			ArgsUsage: "<version>",
			Action: func(c *cli.Context) error {
				v, err := strconv.ParseUint(c.Args().First(), 10, 32)
				if err != nil {
					return fmt.Errorf("goto wants a version number, got %q", c.Args().First())
				}
				return t.withMigrator(func(m *migration.Migrator) error {
					return m.GoTo(uint(v))
				})
			},
		},
		{
			Name:  "version",
			Usage: "Report the current schema version",
			Action: func(*cli.Context) error {
				return t.withMigrator(t.reportVersion)
			},
		},
		{
			Name:      "force",
			Usage:     "Overwrite the recorded version without running migrations",
			ArgsUsage: "<version>",
			Action: func(c *cli.Context) error {
				v, err := strconv.Atoi(c.Args().First())
				if err != nil {
					return fmt.Errorf("force wants a version number, got %q", c.Args().First())
				}
				t.log.Warn("Forcing the schema version, no migrations will run",
					zap.Int("version", v))
				return t.withMigrator(func(m *migration.Migrator) error {
					return m.Force(v)
				})
			},
		},
		{
			Name:  "drop",
			Usage: "Drop every object in the database, data included",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "confirm",
					Usage: "required, drop refuses to run without it",
				},
			},
			Action: func(c *cli.Context) error {
				if !c.Bool("confirm") {
					return fmt.Errorf("drop destroys all data; rerun with --confirm if you mean it")
				}
				return t.withMigrator(func(m *migration.Migrator) error {
					return m.Drop()
				})
			},
		},
		{
			Name:      "create",
			Usage:     "Write a new up/down migration file pair",
			ArgsUsage: "<name> [description]",
			Action:    t.createMigration,
		},
		{
			Name:   "list",
			Usage:  "List the migrations in the migrations directory",
			Action: t.listMigrations,
		},
	}
}

// withMigrator opens the database, wraps it in a Migrator and hands it to
// fn. Teardown lives here so the actions stay small.
func (t *migrateTool) withMigrator(fn func(*migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := migration.New(db, t.dir, t.log)
	if err != nil {
		return err
	}
	defer m.Close()

	return fn(m)
}

func (t *migrateTool) reportVersion(m *migration.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		t.log.Info("No migrations applied")
		return nil
	}
	t.log.Info("Current schema version",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

func (t *migrateTool) createMigration(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("create wants a migration name, e.g. add_signals_table")
	}

	mf, err := migration.CreateMigration(t.dir, c.Args().First(), c.Args().Get(1))
	if err != nil {
		return err
	}

	t.log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func (t *migrateTool) listMigrations(*cli.Context) error {
	names, err := migration.ListMigrations(t.dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		t.log.Info("No migrations found", zap.String("dir", t.dir))
		return nil
	}

	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// resolveMigrationsDir picks the migrations directory: the path flag when
// given, otherwise ./migrations, otherwise two levels above the binary,
// which is the repo root when running a binary built into cmd/migrate.
func resolveMigrationsDir(flagValue string) (string, error) {
	if flagValue != "" {
		return filepath.Abs(flagValue)
	}

	if _, err := os.Stat(defaultMigrationsDir); err == nil {
		return filepath.Abs(defaultMigrationsDir)
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "..", "..", defaultMigrationsDir)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Abs(candidate)
		}
	}

	return filepath.Abs(defaultMigrationsDir)
}
