package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/internal/cli/output"
	"github.com/yndnr/gridmesh-go/pkg/gridclient"
)

// EntryResult is a map entry read or written by a command.
type EntryResult struct {
	Map   string `json:"map" yaml:"map"`
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ConditionalResult reports whether a conditional write took effect.
type ConditionalResult struct {
	Map     string `json:"map" yaml:"map"`
	Key     string `json:"key" yaml:"key"`
	Applied bool   `json:"applied" yaml:"applied"`
}

// LockResult describes a completed lock, hold and release cycle.
type LockResult struct {
	Map   string        `json:"map" yaml:"map"`
	Key   string        `json:"key" yaml:"key"`
	Token string        `json:"token" yaml:"token"`
	Wait  time.Duration `json:"wait" yaml:"wait"`
	Held  time.Duration `json:"held" yaml:"held"`
}

// MapCommand returns the map subcommand group.
func MapCommand() *cli.Command {
	return &cli.Command{
		Name:  "map",
		Usage: "Operate on keyed maps",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Read the value stored under a key",
				ArgsUsage: "MAP KEY",
				Action:    mapGet,
			},
			{
				Name:      "put",
				Usage:     "Store a value under a key",
				ArgsUsage: "MAP KEY VALUE",
				Action:    mapPut,
			},
			{
				Name:      "put-if-absent",
				Usage:     "Store a value only if the key is absent",
				ArgsUsage: "MAP KEY VALUE",
				Action:    mapPutIfAbsent,
			},
			{
				Name:      "cas",
				Usage:     "Replace a value only if it equals the expected one",
				ArgsUsage: "MAP KEY EXPECTED NEW",
				Action:    mapCAS,
			},
			{
				Name:      "lock",
				Usage:     "Acquire a key lock, hold it, then release it",
				ArgsUsage: "MAP KEY",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "hold",
						Value: 5 * time.Second,
						Usage: "how long to hold the lock",
					},
					timeoutFlag(),
				},
				Action: mapLock,
			},
		},
	}
}

func mapGet(c *cli.Context) error {
	args, err := requireArgs(c, "map", "key")
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		v, err := client.Map(args[0]).Get(ctx, args[1])
		if err != nil {
			return err
		}
		return render(c, &EntryResult{Map: args[0], Key: args[1], Value: string(v)})
	})
}

func mapPut(c *cli.Context) error {
	args, err := requireArgs(c, "map", "key", "value")
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		if err := client.Map(args[0]).Put(ctx, args[1], []byte(args[2])); err != nil {
			return err
		}
		return render(c, &EntryResult{Map: args[0], Key: args[1], Value: args[2]})
	})
}

func mapPutIfAbsent(c *cli.Context) error {
	args, err := requireArgs(c, "map", "key", "value")
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		stored, err := client.Map(args[0]).PutIfAbsent(ctx, args[1], []byte(args[2]))
		if err != nil {
			return err
		}
		return render(c, &ConditionalResult{Map: args[0], Key: args[1], Applied: stored})
	})
}

func mapCAS(c *cli.Context) error {
	args, err := requireArgs(c, "map", "key", "expected", "new")
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		swapped, err := client.Map(args[0]).CompareAndSwap(ctx, args[1], []byte(args[2]), []byte(args[3]))
		if err != nil {
			return err
		}
		return render(c, &ConditionalResult{Map: args[0], Key: args[1], Applied: swapped})
	})
}

func mapLock(c *cli.Context) error {
	args, err := requireArgs(c, "map", "key")
	if err != nil {
		return err
	}
	hold := c.Duration("hold")
	return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
		lockCtx, cancel := withTimeout(ctx, c)
		defer cancel()

		spin := output.NewSpinner(c.App.ErrWriter, fmt.Sprintf("waiting for lock %s/%s", args[0], args[1]))
		spin.Start()
		start := time.Now()
		guard, err := client.Map(args[0]).Lock(lockCtx, args[1])
		if err != nil {
			spin.Fail("lock not acquired")
			return err
		}
		wait := time.Since(start)
		spin.Stop()

		spin = output.NewSpinner(c.App.ErrWriter, fmt.Sprintf("holding lock %s/%s for %s", args[0], args[1], hold))
		spin.Start()
		start = time.Now()
		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
		held := time.Since(start)

		if err := guard.Unlock(context.WithoutCancel(ctx)); err != nil {
			spin.Fail("unlock failed")
			return err
		}
		spin.Success("lock released")
		return render(c, &LockResult{Map: args[0], Key: args[1], Token: guard.Token(), Wait: wait, Held: held})
	})
}
