package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/neo-explorer/export"
	"github.com/signalsfoundry/neo-explorer/filter"
	"github.com/signalsfoundry/neo-explorer/internal/logging"
	"github.com/signalsfoundry/neo-explorer/internal/observability"
	"github.com/signalsfoundry/neo-explorer/model"
)

type queryFlags struct {
	date, startDate, endDate string
	minDistance, maxDistance float64
	minVelocity, maxVelocity float64
	minDiameter, maxDiameter float64
	hazardous, notHazardous  bool
	limit                    int
	outfile                  string
}

func newQueryCmd(a *app) *cobra.Command {
	var qf queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List close approaches matching the given criteria",
		Long: `query lists close approaches that match every given criterion. Results go
to stdout (first --limit rows, default from config) or, with --outfile, to a
.csv or .json file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria, err := qf.criteria(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, span := observability.StartSpan(cmd.Context(), "catalog.Query")
			defer span.End()
			log := logging.FromContext(ctx)

			results := a.catalog.Query(filter.Create(criteria)...)

			if qf.outfile == "" {
				limit := qf.limit
				if limit <= 0 {
					limit = a.cfg.Query.Limit
				}
				out := cmd.OutOrStdout()
				n := 0
				for ca := range filter.Limit(results, limit) {
					fmt.Fprintln(out, ca)
					n++
				}
				span.SetAttributes(attribute.Int("query.results", n))
				return nil
			}

			n, err := export.WriteFile(ctx, qf.outfile, filter.Limit(results, qf.limit), a.collector)
			if err != nil {
				span.RecordError(err)
				return err
			}
			span.SetAttributes(attribute.Int("query.results", n))
			log.Info(ctx, "exported close approaches",
				logging.String("path", qf.outfile),
				logging.Int("rows", n),
			)
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s close approaches to %s\n", humanize.Comma(int64(n)), qf.outfile)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&qf.date, "date", "d", "", "only approaches on this date (YYYY-MM-DD)")
	f.StringVarP(&qf.startDate, "start-date", "s", "", "only approaches on or after this date (YYYY-MM-DD)")
	f.StringVarP(&qf.endDate, "end-date", "e", "", "only approaches on or before this date (YYYY-MM-DD)")
	f.Float64Var(&qf.minDistance, "min-distance", 0, "minimum approach distance in au")
	f.Float64Var(&qf.maxDistance, "max-distance", 0, "maximum approach distance in au")
	f.Float64Var(&qf.minVelocity, "min-velocity", 0, "minimum relative velocity in km/s")
	f.Float64Var(&qf.maxVelocity, "max-velocity", 0, "maximum relative velocity in km/s")
	f.Float64Var(&qf.minDiameter, "min-diameter", 0, "minimum NEO diameter in km")
	f.Float64Var(&qf.maxDiameter, "max-diameter", 0, "maximum NEO diameter in km")
	f.BoolVar(&qf.hazardous, "hazardous", false, "only potentially hazardous NEOs")
	f.BoolVar(&qf.notHazardous, "not-hazardous", false, "only NEOs that are not potentially hazardous")
	f.IntVarP(&qf.limit, "limit", "l", 0, "maximum number of results (0 means the default for stdout, all for files)")
	f.StringVarP(&qf.outfile, "outfile", "o", "", "write results to this .csv or .json file")
	cmd.MarkFlagsMutuallyExclusive("hazardous", "not-hazardous")
	cmd.MarkFlagsMutuallyExclusive("date", "start-date")
	cmd.MarkFlagsMutuallyExclusive("date", "end-date")
	return cmd
}

// criteria converts the set flags into filter criteria; unset flags impose no
// constraint even when their zero value would be meaningful.
func (qf *queryFlags) criteria(flags *pflag.FlagSet) (filter.Criteria, error) {
	var c filter.Criteria

	dates := []struct {
		flag string
		raw  string
		dst  **time.Time
	}{
		{"date", qf.date, &c.Date},
		{"start-date", qf.startDate, &c.StartDate},
		{"end-date", qf.endDate, &c.EndDate},
	}
	for _, d := range dates {
		if !flags.Changed(d.flag) {
			continue
		}
		t, err := model.ParseDate(d.raw)
		if err != nil {
			return c, fmt.Errorf("--%s: %w", d.flag, err)
		}
		*d.dst = &t
	}

	floats := []struct {
		flag string
		v    float64
		dst  **float64
	}{
		{"min-distance", qf.minDistance, &c.DistanceMin},
		{"max-distance", qf.maxDistance, &c.DistanceMax},
		{"min-velocity", qf.minVelocity, &c.VelocityMin},
		{"max-velocity", qf.maxVelocity, &c.VelocityMax},
		{"min-diameter", qf.minDiameter, &c.DiameterMin},
		{"max-diameter", qf.maxDiameter, &c.DiameterMax},
	}
	for _, fl := range floats {
		if flags.Changed(fl.flag) {
			v := fl.v
			*fl.dst = &v
		}
	}

	switch {
	case flags.Changed("hazardous") && qf.hazardous:
		h := true
		c.Hazardous = &h
	case flags.Changed("not-hazardous") && qf.notHazardous:
		h := false
		c.Hazardous = &h
	}
	return c, nil
}
