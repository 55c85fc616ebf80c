package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/wrf-grid-viewer/internal/app"
	"github.com/kjstillabower/wrf-grid-viewer/internal/config"
	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
	"github.com/kjstillabower/wrf-grid-viewer/internal/sampler"
	"github.com/kjstillabower/wrf-grid-viewer/internal/service"
	"github.com/kjstillabower/wrf-grid-viewer/internal/timeseries"
	"github.com/kjstillabower/wrf-grid-viewer/internal/validation"
)

type rootOptions struct {
	configDir string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "wrfgrid",
		Short: "Inspect WRF forecast grids",
		Long: `wrfgrid reads the forecast grid files the dashboard serves. It uses the
same configuration as the service: config/{ENV_NAME}.yaml under --config-dir.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "directory containing config/{ENV_NAME}.yaml")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging on stderr")

	root.AddCommand(newProbeCmd(opts), newSampleCmd(opts), newSeriesCmd(opts))
	return root
}

// setup loads configuration and builds the application context. Every
// invocation logs under a fresh run ID.
func (o *rootOptions) setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadFromDir(o.configDir)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewCLILogger(o.verbose)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logger = logger.With(zap.String("run_id", uuid.NewString()))
	return app.New(ctx, cfg, logger)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <variable>",
		Short: "Detect the last forecast hour with data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			a, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.Catalog.Lookup(args[0])
			if err != nil {
				return err
			}
			r, err := a.Probe.MaxHour(ctx, v.Name)
			if err != nil {
				return err
			}
			cmd.Printf("%s: max hour %d (%s, %d probes)\n", v.Name, r.MaxHour, r.Source, r.Probes)
			return nil
		},
	}
}

func newSampleCmd(opts *rootOptions) *cobra.Command {
	var lat, lon string
	cmd := &cobra.Command{
		Use:   "sample <variable> <hour>",
		Short: "Read one grid cell at a coordinate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hour, err := validation.ParseHour(args[1])
			if err != nil {
				return err
			}
			la, lo, err := validation.ParseCoordinates(lat, lon)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			a, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.Catalog.Lookup(args[0])
			if err != nil {
				return err
			}
			res := sampler.Result{Status: sampler.StatusOutOfDomain}
			placeholder := false
			if a.Sampler.InDomain(la, lo) {
				g, ph, err := a.Store.GetOrPlaceholder(ctx, v.Name, hour)
				if err != nil {
					return err
				}
				placeholder = ph
				res = a.Sampler.Sample(g, la, lo)
			}

			value := res.Status.String()
			if res.Status == sampler.StatusOK {
				value = v.Format(res.Value) + " " + v.Units
			}
			line := fmt.Sprintf("%s %s  %s  %s", v.Name, service.FrameLabel(hour), sampler.FormatCoords(la, lo), value)
			if placeholder {
				line += "  (placeholder)"
			}
			cmd.Println(line)
			return nil
		},
	}
	cmd.Flags().StringVar(&lat, "lat", "", "Latitude in degrees")
	cmd.Flags().StringVar(&lon, "lon", "", "Longitude in degrees")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func newSeriesCmd(opts *rootOptions) *cobra.Command {
	var lat, lon, out string
	cmd := &cobra.Command{
		Use:   "series <variable>",
		Short: "Export a location's values across all forecast hours as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			la, lo, err := validation.ParseCoordinates(lat, lon)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			a, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.Catalog.Lookup(args[0])
			if err != nil {
				return err
			}
			req := service.Request{Variable: v.Name, Units: v.Units, Lat: la, Lon: lo}
			if opts.verbose {
				req.Progress = func(done, total int) {
					cmd.PrintErrf("\rhour %d/%d", done, total)
				}
			}
			res, err := a.Aggregator.Run(ctx, req)
			if opts.verbose {
				cmd.PrintErrln()
			}
			if err != nil {
				return err
			}

			if out == "" {
				return timeseries.WriteCSV(cmd.OutOrStdout(), res.Series, res.Summary, v.Precision)
			}
			if err := writeCSVFile(out, res, v.Precision); err != nil {
				return err
			}
			s := res.Summary
			cmd.Printf("%s at %s: %d points (%d missing, %d mismatched)\n",
				v.Name, sampler.FormatCoords(la, lo), s.Count, res.Series.Missing, res.Series.Mismatched)
			cmd.Printf("min %s  max %s  mean %s  trend %s\n", v.Format(s.Min), v.Format(s.Max), v.Format(s.Mean), s.Trend)
			cmd.Printf("wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&lat, "lat", "", "Latitude in degrees")
	cmd.Flags().StringVar(&lon, "lon", "", "Longitude in degrees")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output CSV file (default stdout)")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func writeCSVFile(path string, res *service.Result, precision int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return timeseries.WriteCSV(io.Writer(f), res.Series, res.Summary, precision)
}
