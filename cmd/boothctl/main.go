package main

import (
	"context"
	"fmt"
	"os"

	"photobox/internal/bootstrap"
	"photobox/internal/changefeed"
	"photobox/internal/config"
	"photobox/internal/store"

	"github.com/spf13/cobra"
)

var Version = "dev"

// backend is what every data command needs: the loaded config and an open store.
type backend struct {
	cfg   config.Config
	store store.Store
	close func()
}

type opener func(ctx context.Context) (*backend, error)

func main() {
	if err := newRootCmd(openBackend).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "boothctl",
		Short:         "Operator tooling for the photobox dashboard",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(genCodeCmd())
	root.AddCommand(assignCodeCmd(open))
	root.AddCommand(qrCmd(open))
	root.AddCommand(createUserCmd(open))
	root.AddCommand(setRoleCmd(open))
	root.AddCommand(sweepCmd(open))
	root.AddCommand(exchangeCmd(open))
	return root
}

// openBackend writes through the change feed so connected dashboards see
// operator edits.
func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	bootstrap.InitLogging(cfg.Log)
	base, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	rdb := bootstrap.OpenRedis(cfg.Redis)
	publisher, _ := bootstrap.Feed(rdb)
	return &backend{
		cfg:   cfg,
		store: changefeed.Wrap(base, publisher),
		close: func() {
			if rdb != nil {
				_ = rdb.Close()
			}
			closeStore()
		},
	}, nil
}

func withBackend(cmd *cobra.Command, open opener, fn func(ctx context.Context, b *backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := open(ctx)
	if err != nil {
		return err
	}
	defer b.close()
	return fn(ctx, b)
}
