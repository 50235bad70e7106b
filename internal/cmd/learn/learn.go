package learn

import (
	"context"
	"fmt"
	"github.com/clambin/go-common/charmer"
	"github.com/clambin/home-controller/internal/learning"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

var (
	Cmd = cobra.Command{
		Use:   "learn",
		Short: "manage the learned brightness samples",
	}

	args = charmer.Arguments{
		"room":      {"", "Room of the samples"},
		"condition": {"", "Condition of the samples"},
	}

	listCmd = cobra.Command{
		Use:   "list",
		Short: "list samples",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, s *learning.Store, w io.Writer, _ []string) error {
			return list(ctx, s, w, viper.GetString("room"), viper.GetString("condition"))
		}),
	}
	addCmd = cobra.Command{
		Use:   "add <brightness>",
		Short: "add a sample for room and condition",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, s *learning.Store, w io.Writer, args []string) error {
			return add(ctx, s, w, viper.GetString("room"), viper.GetString("condition"), args[0])
		}),
	}
	deleteCmd = cobra.Command{
		Use:   "delete <id>",
		Short: "delete a sample",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, s *learning.Store, w io.Writer, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id: %q", args[0])
			}
			return s.Delete(ctx, id)
		}),
	}
	targetCmd = cobra.Command{
		Use:   "target",
		Short: "show the brightness learned for room and condition",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, s *learning.Store, w io.Writer, _ []string) error {
			return target(ctx, s, w, viper.GetString("room"), viper.GetString("condition"))
		}),
	}
)

func init() {
	_ = charmer.SetPersistentFlags(&Cmd, viper.GetViper(), args)
	Cmd.AddCommand(&listCmd, &addCmd, &deleteCmd, &targetCmd)
}

type storeFunc func(context.Context, *learning.Store, io.Writer, []string) error

func withStore(f storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("learning.database")
		if path == "" {
			return fmt.Errorf("learning.database not set")
		}
		s, err := learning.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		return f(cmd.Context(), s, cmd.OutOrStdout(), args)
	}
}

func list(ctx context.Context, s *learning.Store, w io.Writer, room, condition string) error {
	samples, err := s.List(ctx, room, condition)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tROOM\tCONDITION\tBRIGHTNESS\tCREATED")
	for _, sample := range samples {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d%%\t%s\n",
			sample.ID, sample.Room, sample.Condition, sample.Brightness, sample.CreatedAt.Local().Format(time.DateTime),
		)
	}
	return tw.Flush()
}

func add(ctx context.Context, s *learning.Store, w io.Writer, room, condition, value string) error {
	brightness, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if err != nil {
		return fmt.Errorf("invalid brightness: %q", value)
	}
	sample, err := s.Add(ctx, learning.Sample{Room: room, Condition: condition, Brightness: brightness})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "added sample %d\n", sample.ID)
	return err
}

func target(ctx context.Context, s *learning.Store, w io.Writer, room, condition string) error {
	brightness, err := s.Target(ctx, room, condition)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s/%s: %d%%\n", room, condition, brightness)
	return err
}
