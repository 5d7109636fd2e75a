package command

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/pkg/gridclient"
)

// PingResult reports a round trip to the grid.
type PingResult struct {
	Server  string        `json:"server" yaml:"server"`
	Cluster string        `json:"cluster" yaml:"cluster"`
	Session string        `json:"session" yaml:"session"`
	Latency time.Duration `json:"latency" yaml:"latency"`
}

// PingCommand checks that the grid is reachable and the session is bound.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check connectivity to the grid",
		Action: func(c *cli.Context) error {
			return withClient(c, func(ctx context.Context, client *gridclient.Client) error {
				start := time.Now()
				if err := client.Ping(ctx); err != nil {
					return err
				}
				s := settings(c)
				return render(c, &PingResult{
					Server:  s.Server,
					Cluster: s.Cluster,
					Session: client.Session(),
					Latency: time.Since(start),
				})
			})
		},
	}
}
