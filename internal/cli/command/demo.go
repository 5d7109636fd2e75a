package command

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/internal/cli/output"
	"github.com/yndnr/gridmesh-go/internal/demo"
	"github.com/yndnr/gridmesh-go/pkg/gridclient"
)

// PopulateResult reports a populate run.
type PopulateResult struct {
	Map     string        `json:"map" yaml:"map"`
	Entries int           `json:"entries" yaml:"entries"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// ConsumerRow summarizes what one consumer received, for table output.
type ConsumerRow struct {
	Consumer string `json:"consumer"`
	Count    int    `json:"count"`
	Items    string `json:"items"`
}

// maxListedItems caps the item list shown per consumer in a table.
const maxListedItems = 20

// DemoCommand returns the demo subcommand group. Without a subcommand it
// runs every routine in order.
func DemoCommand() *cli.Command {
	return &cli.Command{
		Name:   "demo",
		Usage:  "Run the walkthrough routines against the grid",
		Flags:  demoFlags(),
		Action: demoAll,
		Subcommands: []*cli.Command{
			{
				Name:   "all",
				Usage:  "Populate, run the three counters, then producer/consumer",
				Flags:  demoFlags(),
				Action: demoAll,
			},
			{
				Name:   "populate",
				Usage:  "Store Value-i under keys 0..count-1 of " + demo.PopulateMapName,
				Flags:  demoFlags(),
				Action: demoPopulate,
			},
			{
				Name:   "unsync",
				Usage:  "Increment the counter with plain get and put",
				Flags:  demoFlags(),
				Action: demoCounter(demo.CounterUnsynchronized),
			},
			{
				Name:   "pessimistic",
				Usage:  "Increment the counter under the key lock",
				Flags:  demoFlags(),
				Action: demoCounter(demo.CounterPessimistic),
			},
			{
				Name:   "optimistic",
				Usage:  "Increment the counter with compare-and-swap",
				Flags:  demoFlags(),
				Action: demoCounter(demo.CounterOptimistic),
			},
			{
				Name:   "queue",
				Usage:  "Run one producer and several consumers over " + demo.QueueName,
				Flags:  demoFlags(),
				Action: demoQueue,
			},
		},
	}
}

func demoFlags() []cli.Flag {
	d := demo.DefaultConfig()
	return []cli.Flag{
		&cli.IntFlag{Name: "count", Value: d.PopulateCount, Usage: "entries to populate"},
		&cli.IntFlag{Name: "workers", Value: d.Counter.Workers, Usage: "concurrent counter workers"},
		&cli.IntFlag{Name: "iterations", Value: d.Counter.Iterations, Usage: "increments per worker"},
		&cli.IntFlag{Name: "items", Value: d.ProducerConsumer.Items, Usage: "items to produce"},
		&cli.DurationFlag{Name: "interval", Value: d.ProducerConsumer.Interval, Usage: "pause between produced items"},
		&cli.IntFlag{Name: "consumers", Value: d.ProducerConsumer.Consumers, Usage: "concurrent consumers"},
		&cli.UintFlag{Name: "cas-attempts", Usage: "optimistic counter retry limit, 0 retries until the swap lands"},
	}
}

// casAttempts applies --cas-attempts. Left at 0 every optimistic run
// converges on the exact count.
func casAttempts(c *cli.Context) func(*gridclient.Config) {
	return func(cfg *gridclient.Config) {
		cfg.CASAttempts = c.Uint("cas-attempts")
	}
}

func demoConfig(c *cli.Context) demo.Config {
	return demo.Config{
		PopulateCount: c.Int("count"),
		Counter: demo.CounterConfig{
			Workers:    c.Int("workers"),
			Iterations: c.Int("iterations"),
		},
		ProducerConsumer: demo.ProducerConsumerConfig{
			Items:     c.Int("items"),
			Interval:  c.Duration("interval"),
			Consumers: c.Int("consumers"),
		},
	}
}

func demoAll(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		report, err := demo.RunAll(ctx, demo.Targets{
			Populate: client.Map(demo.PopulateMapName),
			Counter:  client.Map(demo.CounterMapName),
			Queue:    client.Queue(demo.QueueName),
		}, demoConfig(c), cliLogger(c))
		if err != nil {
			return err
		}
		if !isTable(c) {
			return render(c, report)
		}
		if err := render(c, report.Counters); err != nil {
			return err
		}
		if _, err := c.App.Writer.Write([]byte("\n")); err != nil {
			return err
		}
		return render(c, consumerRows(report.ProducerConsumer))
	}, casAttempts(c))
}

func demoPopulate(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		n := demoConfig(c).PopulateCount
		start := time.Now()
		if err := demo.PopulateMap(ctx, client.Map(demo.PopulateMapName), n); err != nil {
			return err
		}
		return render(c, &PopulateResult{Map: demo.PopulateMapName, Entries: n, Elapsed: time.Since(start)})
	}, casAttempts(c))
}

func demoCounter(run func(context.Context, demo.Map, demo.CounterConfig) (*demo.CounterResult, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
			res, err := run(ctx, client.Map(demo.CounterMapName), demoConfig(c).Counter)
			if err != nil {
				return err
			}
			return render(c, res)
		}, casAttempts(c))
	}
}

func demoQueue(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		res, err := demo.ProducerConsumer(ctx, client.Queue(demo.QueueName), demoConfig(c).ProducerConsumer, cliLogger(c))
		if err != nil {
			return err
		}
		if isTable(c) {
			return render(c, consumerRows(res))
		}
		return render(c, res)
	}, casAttempts(c))
}

func isTable(c *cli.Context) bool {
	f, err := output.ParseFormat(settings(c).Output)
	return err == nil && f == output.FormatTable
}

func consumerRows(res *demo.ProducerConsumerResult) []ConsumerRow {
	if res == nil {
		return nil
	}
	rows := make([]ConsumerRow, len(res.Received))
	for i, seq := range res.Received {
		shown := seq
		if len(shown) > maxListedItems {
			shown = shown[:maxListedItems]
		}
		items := make([]string, len(shown))
		for j, n := range shown {
			items[j] = strconv.Itoa(n)
		}
		list := strings.Join(items, ",")
		if len(seq) > len(shown) {
			list += ",..."
		}
		rows[i] = ConsumerRow{
			Consumer: "consumer-" + strconv.Itoa(i+1),
			Count:    len(seq),
			Items:    list,
		}
	}
	return rows
}
