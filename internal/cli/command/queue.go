package command

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/pkg/gridclient"
)

// ItemResult is a queue item put or taken by a command.
type ItemResult struct {
	Queue string `json:"queue" yaml:"queue"`
	Item  string `json:"item" yaml:"item"`
}

// QueueCommand returns the queue subcommand group.
func QueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Operate on bounded queues",
		Subcommands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "Append an item, waiting while the queue is full",
				ArgsUsage: "QUEUE ITEM",
				Flags:     []cli.Flag{timeoutFlag()},
				Action:    queuePut,
			},
			{
				Name:      "take",
				Usage:     "Remove the head item, waiting while the queue is empty",
				ArgsUsage: "QUEUE",
				Flags:     []cli.Flag{timeoutFlag()},
				Action:    queueTake,
			},
		},
	}
}

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "timeout",
		Usage: "give up waiting after this long (0 waits forever)",
	}
}

// withTimeout applies the --timeout flag to ctx.
func withTimeout(ctx context.Context, c *cli.Context) (context.Context, context.CancelFunc) {
	if d := c.Duration("timeout"); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func queuePut(c *cli.Context) error {
	args, err := requireArgs(c, "queue", "item")
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		ctx, cancel := withTimeout(ctx, c)
		defer cancel()
		if err := client.Queue(args[0]).Put(ctx, []byte(args[1])); err != nil {
			return err
		}
		return render(c, &ItemResult{Queue: args[0], Item: args[1]})
	})
}

func queueTake(c *cli.Context) error {
	args, err := requireArgs(c, "queue")
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		ctx, cancel := withTimeout(ctx, c)
		defer cancel()
		item, err := client.Queue(args[0]).Take(ctx)
		if err != nil {
			return err
		}
		return render(c, &ItemResult{Queue: args[0], Item: string(item)})
	})
}
