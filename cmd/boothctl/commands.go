package main

import (
	"context"
	"fmt"
	"os"

	"photobox/internal/account"
	"photobox/internal/boothcode"
	"photobox/internal/boothtoken"
	"photobox/internal/bootstrap"
	"photobox/internal/config"
	"photobox/internal/identity"
	"photobox/internal/resource"
	"photobox/internal/store/postgres"
	"photobox/internal/sweeper"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL migrations to store.database_url",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Store.DatabaseURL == "" {
				return config.ErrMissingDatabaseURL
			}
			pool, err := bootstrap.OpenPostgres(cmd.Context(), cfg.Store.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := postgres.Migrate(cmd.Context(), pool, dir)
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding the .sql files")
	return cmd
}

func genCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-code",
		Short: "Print a fresh booth code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := boothcode.Generate()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	}
}

func assignCodeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "assign-code <client-id> <booth-id>",
		Short: "Give a booth a new unique code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				code, err := resource.NewBooths(b.store).AssignCode(ctx, resource.Scope{ClientID: args[0]}, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), code)
				return nil
			})
		},
	}
}

func qrCmd(open opener) *cobra.Command {
	var (
		out  string
		size int
	)
	cmd := &cobra.Command{
		Use:   "qr <client-id> <booth-id>",
		Short: "Write the booth code of a booth as a PNG QR code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				booth, err := resource.NewBooths(b.store).GetOne(ctx, resource.Scope{ClientID: args[0]}, args[1])
				if err != nil {
					return err
				}
				code, _ := booth["boothCode"].(string)
				if code == "" {
					return fmt.Errorf("booth %s has no booth code; run assign-code first", args[1])
				}
				png, err := boothcode.QR(code, size)
				if err != nil {
					return err
				}
				if out == "" {
					out = code + ".png"
				}
				if err := os.WriteFile(out, png, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <code>.png)")
	cmd.Flags().IntVar(&size, "size", boothcode.DefaultQRSize, "image size in pixels")
	return cmd
}

func createUserCmd(open opener) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "create-user <email> <password>",
		Short: "Create or reset email credentials",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				provider := bootstrap.NewProvider(b.store, identity.NewMemorySessionStore(), b.cfg.Session)
				id, err := provider.SetPassword(ctx, args[0], args[1], userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "attach the credentials to an existing user id")
	return cmd
}

func setRoleCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <user-id> <client|admin>",
		Short: "Change the role of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				user, err := account.NewService(b.store, nil).SetRole(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.UserID, user.Role)
				return nil
			})
		},
	}
}

func sweepCmd(open opener) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Delete vouchers and backgrounds whose booth no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				if batch <= 0 {
					batch = b.cfg.Sweeper.BatchSize
				}
				result, err := sweeper.New(b.store, sweeper.Config{BatchSize: batch}).Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, deleted %d\n", result.Scanned, result.Deleted)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "documents per batch (default sweeper.batch_size)")
	return cmd
}

func exchangeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "exchange <booth-code>",
		Short: "Exchange a booth code for a booth token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
				if err := b.cfg.Validate(); err != nil {
					return err
				}
				tokens := boothtoken.NewService(boothtoken.NewStoreFinder(b.store), boothtoken.Config{
					Secret: []byte(b.cfg.Token.Secret),
					TTL:    b.cfg.Token.TTL,
					Issuer: b.cfg.Token.Issuer,
				})
				token, err := tokens.Exchange(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(token)
			})
		},
	}
}
