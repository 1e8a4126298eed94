package main

import (
	"github.com/spf13/cobra"

	"kpidash/internal/middleware"
	"kpidash/internal/services"
)

// selectionFlags binds the dashboard filters to a command.
type selectionFlags struct {
	ids              []string
	from             string
	to               string
	buckets          []string
	trendMetric      string
	comparisonMetric string
	topN             int
	reducer          string
}

func (s *selectionFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&s.ids, "id", nil, `identifier to include, repeatable (default: all; --id "" selects none)`)
	f.StringVar(&s.from, "from", "", "first day to include, YYYY-MM-DD")
	f.StringVar(&s.to, "to", "", "last day to include, YYYY-MM-DD")
	f.StringSliceVar(&s.buckets, "bucket", nil, "time bucket to include, repeatable")
	f.StringVar(&s.trendMetric, "trend-metric", "", "metric plotted over time")
	f.StringVar(&s.comparisonMetric, "comparison-metric", "", "metric ranked in the top-N comparison")
	f.IntVarP(&s.topN, "top", "n", 0, "identifiers in the comparison (clamped to the data)")
	f.StringVar(&s.reducer, "reducer", "", "how trend buckets and comparison groups combine: mean, sum, count, min or max (default mean)")
}

// request builds a validated render request. The source and sheets come
// from the configuration so the service applies its defaults.
func (s *selectionFlags) request() (services.RenderRequest, error) {
	req := services.RenderRequest{
		Identifiers:      s.ids,
		From:             s.from,
		To:               s.to,
		Buckets:          s.buckets,
		TrendMetric:      s.trendMetric,
		ComparisonMetric: s.comparisonMetric,
		TopN:             s.topN,
		Reducer:          s.reducer,
	}
	if err := middleware.ValidateStruct(middleware.NewValidator(), req); err != nil {
		return req, err
	}
	return req, nil
}
