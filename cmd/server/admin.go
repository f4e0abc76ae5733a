package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu-server/internal/app"
	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/pkg/logger"
)

// withStack bootstraps the runtime without HTTP and releases it once fn returns.
func withStack(ctx context.Context, load configLoader, fn func(*runtimeStack) error) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}
	defer logger.Sync() // best effort
	return runWithStack(ctx, cfg, log, fn)
}

func runWithStack(ctx context.Context, cfg *app.Config, log *zap.Logger, fn func(*runtimeStack) error) error {
	stack, err := bootstrapRuntime(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer stack.Shutdown(context.Background(), log)
	return fn(stack)
}

func newCacheCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate cached data",
	}
	cmd.AddCommand(newCacheStatsCmd(load))
	cmd.AddCommand(newCacheInvalidateCmd(load))
	cmd.AddCommand(newCacheClearCmd(load))
	return cmd
}

func newCacheStatsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStack(cmd.Context(), load, func(stack *runtimeStack) error {
				return printCacheStats(cmd.Context(), cmd.OutOrStdout(), stack)
			})
		},
	}
}

func printCacheStats(ctx context.Context, out io.Writer, stack *runtimeStack) error {
	stats := stack.Cache.Statistics(ctx)
	payload := struct {
		Healthy    bool             `json:"healthy"`
		Statistics cache.Statistics `json:"statistics"`
	}{Healthy: stack.Cache.HealthCheck(ctx), Statistics: stats}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}

func newCacheInvalidateCmd(load configLoader) *cobra.Command {
	var businessID string

	cmd := &cobra.Command{
		Use:   "invalidate <entity> <id>",
		Short: "Invalidate cached entries for a business, service, appointment or user",
		Long: "Invalidate cached entries for one entity. Entity is one of business, service, " +
			"appointment, user or all (id is ignored for all).",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) > 1 {
				id = args[1]
			}
			return withStack(cmd.Context(), load, func(stack *runtimeStack) error {
				return invalidateEntity(cmd.Context(), cmd.OutOrStdout(), stack, args[0], id, businessID)
			})
		},
	}
	cmd.Flags().StringVar(&businessID, "business", "", "Owning business id (services and appointments)")
	return cmd
}

func invalidateEntity(ctx context.Context, out io.Writer, stack *runtimeStack, entity, id, businessID string) error {
	result, err := stack.Cache.InvalidateEntity(ctx, entity, id, businessID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %d cache keys\n", result.Deleted)
	if result.Err != nil {
		return fmt.Errorf("invalidation incomplete: %w", result.Err)
	}
	return nil
}

func newCacheClearCmd(load configLoader) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache entry of the current key version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errors.New("refusing to clear the cache without --yes")
			}
			return withStack(cmd.Context(), load, func(stack *runtimeStack) error {
				result := stack.Cache.ClearAll(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d cache keys\n", result.Deleted)
				return result.Err
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm clearing the cache")
	return cmd
}

func newUserCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newGrantAdminCmd(load))
	return cmd
}

func newGrantAdminCmd(load configLoader) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "grant-admin <email>",
		Short: "Grant or revoke administrator access for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd.Context(), load, func(stack *runtimeStack) error {
				return grantAdmin(cmd.Context(), cmd.OutOrStdout(), stack, args[0], !revoke)
			})
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Remove administrator access instead")
	return cmd
}

func grantAdmin(ctx context.Context, out io.Writer, stack *runtimeStack, email string, admin bool) error {
	user, err := stack.Services.Users.SetAdmin(ctx, email, admin)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s admin=%t\n", user.Email, user.IsAdmin)
	return err
}
