// Command compliance-client calls the compliance RPC surface from the shell
// and prints each response as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/signalsfoundry/svc-compliance/internal/grpcapi"
	"github.com/signalsfoundry/svc-compliance/model"
	"github.com/spf13/cobra"
)

type options struct {
	endpoint string
	timeout  time.Duration
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "compliance-client",
		Short:         "Call the compliance service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "localhost:50051", "compliance gRPC endpoint (host:port)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-call timeout")

	root.AddCommand(
		newReadyCommand(opts),
		newSubmitPlanCommand(opts),
		newReleaseCommand(opts),
		newWaypointsCommand(opts),
		newRestrictionsCommand(opts),
	)
	return root
}

func newReadyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check whether the service is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *grpcapi.Client) (any, error) {
				return c.IsReady(ctx, &grpcapi.ReadyRequest{})
			})
		},
	}
}

func newSubmitPlanCommand(opts *options) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "submit-plan FLIGHT_PLAN_ID",
		Short: "Submit a flight plan to the regional authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *grpcapi.Client) (any, error) {
				return c.SubmitFlightPlan(ctx, &grpcapi.FlightPlanRequest{FlightPlanID: args[0], Data: data})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "{}", "flight plan payload (JSON)")
	return cmd
}

func newReleaseCommand(opts *options) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "release FLIGHT_PLAN_ID",
		Short: "Request a flight release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *grpcapi.Client) (any, error) {
				return c.RequestFlightRelease(ctx, &grpcapi.FlightReleaseRequest{FlightPlanID: args[0], Data: data})
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "{}", "release payload (JSON)")
	return cmd
}

func newWaypointsCommand(opts *options) *cobra.Command {
	box := &boxFlags{}
	cmd := &cobra.Command{
		Use:   "waypoints",
		Short: "List cached waypoints, optionally inside a bounding box",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := box.filter(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *grpcapi.Client) (any, error) {
				return c.RequestWaypoints(ctx, &grpcapi.WaypointsRequest{Filter: filter})
			})
		},
	}
	box.register(cmd)
	return cmd
}

func newRestrictionsCommand(opts *options) *cobra.Command {
	box := &boxFlags{}
	cmd := &cobra.Command{
		Use:   "restrictions",
		Short: "List cached restriction zones, optionally inside a bounding box",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := box.filter(cmd)
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *grpcapi.Client) (any, error) {
				return c.RequestRestrictions(ctx, &grpcapi.RestrictionsRequest{Filter: filter})
			})
		},
	}
	box.register(cmd)
	return cmd
}

// boxFlags collects an optional bounding box. Each corner is only set when
// both of its coordinates were given.
type boxFlags struct {
	minLat, minLon, maxLat, maxLon float64
}

func (b *boxFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&b.minLat, "min-lat", 0, "southern bound")
	cmd.Flags().Float64Var(&b.minLon, "min-lon", 0, "western bound")
	cmd.Flags().Float64Var(&b.maxLat, "max-lat", 0, "northern bound")
	cmd.Flags().Float64Var(&b.maxLon, "max-lon", 0, "eastern bound")
}

func (b *boxFlags) filter(cmd *cobra.Command) (*model.BoundingBoxFilter, error) {
	changed := func(name string) bool { return cmd.Flags().Changed(name) }

	var f model.BoundingBoxFilter
	switch {
	case changed("min-lat") && changed("min-lon"):
		f.Min = &model.Coordinate{Latitude: b.minLat, Longitude: b.minLon}
	case changed("min-lat") || changed("min-lon"):
		return nil, fmt.Errorf("--min-lat and --min-lon must be given together")
	}
	switch {
	case changed("max-lat") && changed("max-lon"):
		f.Max = &model.Coordinate{Latitude: b.maxLat, Longitude: b.maxLon}
	case changed("max-lat") || changed("max-lon"):
		return nil, fmt.Errorf("--max-lat and --max-lon must be given together")
	}
	if f.IsOpen() {
		return nil, nil
	}
	return &f, nil
}

func withClient(cmd *cobra.Command, opts *options, call func(context.Context, *grpcapi.Client) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	conn, err := grpcapi.Dial(opts.endpoint)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	resp, err := call(ctx, grpcapi.NewClient(conn))
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
