package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"

	"raffle/internal/config"
	"raffle/internal/logger"
	"raffle/internal/oracle"
	"raffle/internal/raffle"
	"raffle/internal/storage"
)

// environment is opened by the first command that needs it and shared by
// every command of the run.
type environment struct {
	envFile       string
	configuration config.Configuration
	storage       *storage.SqliteStorage
	machine       *raffle.Machine
	oracle        *oracle.Oracle
}

func newApp() *cli.App {
	env := &environment{}

	app := cli.NewApp()
	app.Name = "raffle"
	app.Usage = "escrow raffle: sell tickets, draw a winner from committed randomness, split the pool"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "env", Value: ".env", Usage: "dotenv file to load before reading the environment"},
	}
	app.Before = func(c *cli.Context) error {
		env.envFile = c.GlobalString("env")
		return nil
	}
	app.After = func(c *cli.Context) error {
		return env.close()
	}

	id := cli.StringFlag{Name: "id", Usage: "raffle id"}
	app.Commands = []cli.Command{
		{
			Name:  "create",
			Usage: "create a raffle",
			Flags: []cli.Flag{
				id,
				cli.StringFlag{Name: "admin", Usage: "admin identity"},
				cli.StringFlag{Name: "creator", Usage: "creator identity"},
				cli.StringFlag{Name: "operator", Usage: "operator identity (defaults to RAFFLE_OPERATOR)"},
				cli.Uint64Flag{Name: "fee", Usage: "entry fee per ticket"},
				cli.DurationFlag{Name: "ends-in", Value: time.Hour, Usage: "time until ticket sales stop"},
			},
			Action: env.with(env.create),
		},
		{
			Name:   "buy",
			Usage:  "buy a ticket",
			Flags:  []cli.Flag{id, cli.StringFlag{Name: "buyer", Usage: "buyer identity"}},
			Action: env.with(env.buy),
		},
		{
			Name:   "select",
			Usage:  "select the winner of an ended raffle",
			Flags:  []cli.Flag{id, cli.StringFlag{Name: "ref", Usage: "randomness commitment ref"}},
			Action: env.with(env.selectWinner),
		},
		{
			Name:   "claim",
			Usage:  "claim the prize as the winner",
			Flags:  []cli.Flag{id, cli.StringFlag{Name: "caller", Usage: "caller identity"}},
			Action: env.with(env.claim),
		},
		{
			Name:  "rearm",
			Usage: "open a new round of a completed raffle",
			Flags: []cli.Flag{
				id,
				cli.StringFlag{Name: "caller", Usage: "caller identity"},
				cli.DurationFlag{Name: "ends-in", Value: time.Hour, Usage: "time until ticket sales stop"},
			},
			Action: env.with(env.rearm),
		},
		{
			Name:   "close",
			Usage:  "sweep the pool to the admin and remove the raffle",
			Flags:  []cli.Flag{id, cli.StringFlag{Name: "caller", Usage: "caller identity"}},
			Action: env.with(env.closeRaffle),
		},
		{
			Name:   "list",
			Usage:  "list every raffle",
			Action: env.with(env.list),
		},
		{
			Name:   "ended",
			Usage:  "list raffles whose sales are over and whose round still holds tickets",
			Action: env.with(env.ended),
		},
		{
			Name:   "history",
			Usage:  "show the transfers into and out of an account",
			Flags:  []cli.Flag{cli.StringFlag{Name: "account", Usage: "account identity"}},
			Action: env.with(env.history),
		},
		{
			Name:   "status",
			Usage:  "show a raffle",
			Flags:  []cli.Flag{id},
			Action: env.with(env.status),
		},
		{
			Name:  "fund",
			Usage: "deposit into an account",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "account", Usage: "account identity"},
				cli.Uint64Flag{Name: "amount", Usage: "amount to deposit"},
			},
			Action: env.with(env.fund),
		},
		{
			Name:   "balance",
			Usage:  "show an account balance",
			Flags:  []cli.Flag{cli.StringFlag{Name: "account", Usage: "account identity"}},
			Action: env.with(env.balance),
		},
		{
			Name:  "commit",
			Usage: "register a randomness commitment",
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "reveal-in", Usage: "time until the seed may be revealed (defaults to RAFFLE_REVEAL_DELAY)"},
				cli.StringFlag{Name: "id", Usage: "raffle the draw is for; the reveal is pushed past its end time"},
			},
			Action: env.with(env.commit),
		},
		{
			Name:   "reveal",
			Usage:  "reveal a due randomness commitment",
			Flags:  []cli.Flag{cli.StringFlag{Name: "ref", Usage: "commitment ref"}},
			Action: env.with(env.reveal),
		},
	}

	return app
}

func (e *environment) with(action func(c *cli.Context) error) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		if e.storage == nil {
			if err := e.open(); err != nil {
				return err
			}
		}
		return action(c)
	}
}

func (e *environment) open() error {
	configuration, err := config.Load(e.envFile)
	if err != nil {
		return err
	}
	if err := logger.Initialize(configuration.Logger()); err != nil {
		return err
	}

	sqliteStorage, err := storage.NewSqliteStorage(configuration.DatabasePath)
	if err != nil {
		return err
	}

	e.configuration = configuration
	e.storage = sqliteStorage
	e.oracle = oracle.New(sqliteStorage)
	e.machine = raffle.NewMachine(sqliteStorage, e.oracle,
		raffle.WithOperator(configuration.Operator),
		raffle.WithSplit(raffle.Split{
			Winner:   configuration.WinnerPct,
			Creator:  configuration.CreatorPct,
			Operator: configuration.OperatorPct,
		}),
	)
	return nil
}

func (e *environment) close() error {
	logger.Sync()
	if e.storage == nil {
		return nil
	}
	return e.storage.Close()
}

func required(c *cli.Context, names ...string) error {
	var missing []string
	for _, name := range names {
		if c.String(name) == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return cli.NewExitError("missing "+strings.Join(missing, ", "), 2)
	}
	return nil
}

func (e *environment) create(c *cli.Context) error {
	if err := required(c, "id", "admin", "creator"); err != nil {
		return err
	}

	r, err := e.machine.Create(context.Background(), raffle.CreateParams{
		ID:       c.String("id"),
		Admin:    c.String("admin"),
		Creator:  c.String("creator"),
		Operator: c.String("operator"),
		EntryFee: c.Uint64("fee"),
		EndTime:  time.Now().Add(c.Duration("ends-in")),
	})
	if err != nil {
		return err
	}
	return printRaffle(c, r)
}

func (e *environment) buy(c *cli.Context) error {
	if err := required(c, "id", "buyer"); err != nil {
		return err
	}

	r, err := e.machine.SellTicket(context.Background(), c.String("id"), c.String("buyer"))
	if err != nil {
		return err
	}
	return printRaffle(c, r)
}

func (e *environment) selectWinner(c *cli.Context) error {
	if err := required(c, "id", "ref"); err != nil {
		return err
	}

	r, err := e.machine.SelectWinner(context.Background(), c.String("id"), c.String("ref"))
	if err != nil {
		return err
	}
	return printRaffle(c, r)
}

func (e *environment) claim(c *cli.Context) error {
	if err := required(c, "id", "caller"); err != nil {
		return err
	}

	payout, err := e.machine.ClaimPrize(context.Background(), c.String("id"), c.String("caller"))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.App.Writer, "winner=%d creator=%d operator=%d dust=%d\n",
		payout.Winner, payout.Creator, payout.Operator, payout.Dust)
	return err
}

func (e *environment) rearm(c *cli.Context) error {
	if err := required(c, "id", "caller"); err != nil {
		return err
	}

	r, err := e.machine.Rearm(context.Background(), c.String("id"), c.String("caller"), time.Now().Add(c.Duration("ends-in")))
	if err != nil {
		return err
	}
	return printRaffle(c, r)
}

func (e *environment) closeRaffle(c *cli.Context) error {
	if err := required(c, "id", "caller"); err != nil {
		return err
	}

	swept, err := e.machine.Close(context.Background(), c.String("id"), c.String("caller"))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.App.Writer, "swept=%d\n", swept)
	return err
}

func (e *environment) status(c *cli.Context) error {
	if err := required(c, "id"); err != nil {
		return err
	}

	r, err := e.machine.Get(context.Background(), c.String("id"))
	if err != nil {
		return err
	}
	return printRaffle(c, r)
}

func (e *environment) fund(c *cli.Context) error {
	if err := required(c, "account"); err != nil {
		return err
	}

	account := c.String("account")
	if err := e.storage.Deposit(account, c.Uint64("amount")); err != nil {
		return err
	}
	return e.printBalance(c, account)
}

func (e *environment) balance(c *cli.Context) error {
	if err := required(c, "account"); err != nil {
		return err
	}
	return e.printBalance(c, c.String("account"))
}

func (e *environment) printBalance(c *cli.Context, account string) error {
	balance, err := e.storage.Balance(account)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.App.Writer, "%s=%d\n", account, balance)
	return err
}

func (e *environment) commit(c *cli.Context) error {
	delay := e.configuration.RevealDelay
	if c.IsSet("reveal-in") {
		delay = c.Duration("reveal-in")
	}

	now := time.Now()
	revealAt := now.Add(delay)
	if id := c.String("id"); id != "" {
		r, err := e.machine.Get(context.Background(), id)
		if err != nil {
			return err
		}
		if !revealAt.After(r.EndTime) {
			revealAt = r.EndTime.Add(time.Second)
		}
	}

	commitment, err := e.oracle.Commit(now, revealAt)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.App.Writer, "ref=%s digest=%x reveal_at=%s\n",
		commitment.Ref, commitment.Digest, commitment.RevealAt.Format(time.RFC3339))
	return err
}

func (e *environment) reveal(c *cli.Context) error {
	if err := required(c, "ref"); err != nil {
		return err
	}

	commitment, err := e.oracle.Reveal(c.String("ref"), time.Now())
	if err != nil {
		return err
	}

	logger.Debug("commitment revealed from cli", zap.String("ref", commitment.Ref))
	_, err = fmt.Fprintf(c.App.Writer, "ref=%s seed=%x\n", commitment.Ref, commitment.Seed)
	return err
}

func (e *environment) list(c *cli.Context) error {
	raffles, err := e.machine.List(context.Background())
	if err != nil {
		return err
	}
	return printRaffles(c, raffles)
}

func (e *environment) ended(c *cli.Context) error {
	raffles, err := e.machine.Ended(context.Background())
	if err != nil {
		return err
	}
	return printRaffles(c, raffles)
}

func (e *environment) history(c *cli.Context) error {
	if err := required(c, "account"); err != nil {
		return err
	}

	transfers, err := e.storage.GetTransfers(c.String("account"))
	if err != nil {
		return err
	}

	for _, transfer := range transfers {
		from := transfer.From
		if from == "" {
			from = "deposit"
		}
		_, err := fmt.Fprintf(c.App.Writer, "%s %s -> %s %d\n",
			transfer.At.Format(time.RFC3339), from, transfer.To, transfer.Amount)
		if err != nil {
			return err
		}
	}
	return nil
}

func printRaffles(c *cli.Context, raffles []*raffle.Raffle) error {
	for _, r := range raffles {
		if err := printRaffle(c, r); err != nil {
			return err
		}
	}
	return nil
}

func printRaffle(c *cli.Context, r *raffle.Raffle) error {
	_, err := fmt.Fprintf(c.App.Writer,
		"id=%s status=%s tickets=%d/%d entry_fee=%d end_time=%s winner=%q total_prize=%d dust=%d round=%d\n",
		r.ID, r.Status, r.TotalTickets, raffle.MaxParticipants, r.EntryFee,
		r.EndTime.Format(time.RFC3339), r.Winner, r.TotalPrize, r.Dust, r.Round)
	return err
}
