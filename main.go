package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"blocklotto/cmd"
	"blocklotto/database"

	log "github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "blocklotto"
	app.Usage = "provably fair lottery drawn from Bitcoin block hashes"
	app.Commands = []cli.Command{
		runCommand,
		migrateCommand,
		lotteryCommand,
		accountCommand,
		eventsCommand,
	}
	app.Action = runService

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var (
	runCommand = cli.Command{
		Name:   "run",
		Usage:  "Run the lottery service, drive worker and HTTP API",
		Action: runService,
	}

	migrateFlags = []cli.Flag{
		cli.StringFlag{Name: "database-url", Usage: "PostgreSQL server URL", EnvVar: "DATABASE_URL"},
		cli.StringFlag{Name: "database-name", Usage: "Database to migrate", EnvVar: "DATABASE_NAME"},
	}

	migrateCommand = cli.Command{
		Name:  "migrate",
		Usage: "Manage database migrations",
		Subcommands: []cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Flags: migrateFlags,
				Action: func(ctx *cli.Context) error {
					return database.MigrateUp(migrationURL(ctx))
				},
			},
			{
				Name:      "down",
				Usage:     "Roll back migrations",
				ArgsUsage: "[steps]",
				Flags:     migrateFlags,
				Action: func(ctx *cli.Context) error {
					steps := 1
					if ctx.NArg() > 0 {
						n, err := strconv.Atoi(ctx.Args().First())
						if err != nil {
							return fmt.Errorf("invalid steps value: %w", err)
						}
						steps = n
					}
					return database.MigrateDown(migrationURL(ctx), steps)
				},
			},
			{
				Name:  "status",
				Usage: "Show the current migration version",
				Flags: migrateFlags,
				Action: func(ctx *cli.Context) error {
					status, err := database.Status(migrationURL(ctx))
					if err != nil {
						return err
					}
					return json.NewEncoder(os.Stdout).Encode(status)
				},
			},
		},
	}

	lotteryIDFlag = cli.Int64Flag{
		Name:  "id",
		Usage: "Lottery ID",
	}

	lotteryCommand = cli.Command{
		Name:  "lottery",
		Usage: "Administer lotteries",
		Subcommands: []cli.Command{
			{
				Name:  "create",
				Usage: "Open a new lottery",
				Flags: []cli.Flag{
					cli.Int64Flag{Name: "price", Usage: "Ticket price in the smallest currency unit"},
					cli.Int64Flag{Name: "draw-height", Usage: "Bitcoin block height whose hash draws the winner"},
				},
				Action: withAdmin(func(ctx context.Context, admin *cmd.Admin, c *cli.Context) error {
					return admin.CreateLottery(ctx, c.Int64("price"), c.Int64("draw-height"))
				}),
			},
			{
				Name:  "info",
				Usage: "Show a lottery with its draw and settlement",
				Flags: []cli.Flag{lotteryIDFlag},
				Action: withAdmin(func(ctx context.Context, admin *cmd.Admin, c *cli.Context) error {
					return admin.LotteryInfo(ctx, c.Int64("id"))
				}),
			},
			{
				Name:  "advance",
				Usage: "Apply every transition the chain currently allows",
				Flags: []cli.Flag{lotteryIDFlag},
				Action: withAdmin(func(ctx context.Context, admin *cmd.Admin, c *cli.Context) error {
					return admin.AdvanceLottery(ctx, c.Int64("id"))
				}),
			},
			{
				Name:  "void",
				Usage: "Void a lottery stuck in Locked past the stall timeout and refund its tickets",
				Flags: []cli.Flag{lotteryIDFlag},
				Action: withAdmin(func(ctx context.Context, admin *cmd.Admin, c *cli.Context) error {
					return admin.VoidLottery(ctx, c.Int64("id"))
				}),
			},
		},
	}

	ownerFlag = cli.StringFlag{
		Name:  "owner",
		Usage: "Account owner",
	}

	accountCommand = cli.Command{
		Name:  "account",
		Usage: "Administer payout accounts",
		Subcommands: []cli.Command{
			{
				Name:  "freeze",
				Usage: "Freeze an account so payouts to it fail",
				Flags: []cli.Flag{ownerFlag},
				Action: withAdmin(func(ctx context.Context, admin *cmd.Admin, c *cli.Context) error {
					return admin.SetAccountFrozen(ctx, c.String("owner"), true)
				}),
			},
			{
				Name:  "unfreeze",
				Usage: "Unfreeze an account",
				Flags: []cli.Flag{ownerFlag},
				Action: withAdmin(func(ctx context.Context, admin *cmd.Admin, c *cli.Context) error {
					return admin.SetAccountFrozen(ctx, c.String("owner"), false)
				}),
			},
			{
				Name:  "info",
				Usage: "Show an account and its latest credits",
				Flags: []cli.Flag{
					ownerFlag,
					cli.IntFlag{Name: "limit", Value: 20, Usage: "Number of entries to show"},
				},
				Action: withAdmin(func(ctx context.Context, admin *cmd.Admin, c *cli.Context) error {
					return admin.AccountInfo(ctx, c.String("owner"), c.Int("limit"))
				}),
			},
		},
	}

	eventsCommand = cli.Command{
		Name:  "events",
		Usage: "Inspect published lottery events",
		Subcommands: []cli.Command{
			{
				Name:  "tail",
				Usage: "Print lottery events as they are published",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "subject", Value: "lottery.>", Usage: "Subject filter"},
					cli.StringFlag{Name: "consumer", Value: "blocklotto-tail", Usage: "Durable consumer prefix"},
				},
				Action: func(c *cli.Context) error {
					ctx, cancel := signalContext()
					defer cancel()
					return cmd.TailEvents(ctx, os.Stdout, c.String("subject"), c.String("consumer"))
				},
			},
		},
	}
)

func runService(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	if err := cmd.Run(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}
	return nil
}

// withAdmin opens the admin connections around a one-shot command
func withAdmin(fn func(ctx context.Context, admin *cmd.Admin, c *cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		ctx := context.Background()
		admin, err := cmd.NewAdmin(ctx, os.Stdout)
		if err != nil {
			return err
		}
		defer admin.Close()
		return fn(ctx, admin, c)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Info("Received shutdown signal, shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// migrationURL reads the database from flags or the environment so migrations
// run without the full service configuration
func migrationURL(ctx *cli.Context) string {
	return database.ConstructDatabaseURL(ctx.String("database-url"), ctx.String("database-name"))
}
