// Command dpe-train fits and scores the consumption models on the cached
// department files.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dpe-analyse/dpe-client/internal/config"
	"github.com/dpe-analyse/dpe-client/pkg/logging"
	"github.com/dpe-analyse/dpe-client/pkg/model"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	configPath := flag.String("config", "", "YAML config file (default: dpe.yaml in . or ./configs)")
	departments := flag.String("departments", "", "comma-separated department codes (overrides model.departments)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 2
	}
	logging.Setup(cfg.LoggingSetup())

	deps := cfg.Model.Departments
	if *departments != "" {
		deps = splitList(*departments)
	}
	return run(cfg, deps, os.Stdout)
}

// run analyzes deps and prints a summary to w. It fails only when no
// department could be analyzed.
func run(cfg *config.Config, deps []string, w io.Writer) int {
	logger := logging.WithRun(logging.NewLogger("dpe-train"), uuid.NewString())
	if len(deps) == 0 {
		logger.Error().Msg("No departments to analyze")
		return 2
	}
	logger.Info().Strs("departments", deps).Str("data_root", cfg.Model.DataRoot).Msg("Training run started")

	reports, errs := model.NewAnalyzer(cfg.AnalyzerConfig()).RunAll(deps)
	writeSummary(w, reports, errs)

	logger.Info().
		Int("analyzed", len(reports)).
		Int("skipped", len(errs)).
		Msg("Training run finished")
	if len(reports) == 0 {
		return 1
	}
	return 0
}

func writeSummary(w io.Writer, reports []*model.Report, errs map[string]error) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPARTMENT\tMODEL\tRMSE\tR2\tROWS\t")
	for _, r := range reports {
		for i, res := range r.Results {
			mark := ""
			if i == r.Best {
				mark = "best"
			}
			if res.Err != nil {
				fmt.Fprintf(tw, "%s\t%s\t-\t-\t%d\tfailed: %v\n", r.Department, res.Model, r.TrainRows+r.TestRows, res.Err)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.4f\t%d\t%s\n", r.Department, res.Model, res.RMSE, res.R2, r.TrainRows+r.TestRows, mark)
		}
	}

	skipped := make([]string, 0, len(errs))
	for dep := range errs {
		skipped = append(skipped, dep)
	}
	sort.Strings(skipped)
	for _, dep := range skipped {
		fmt.Fprintf(tw, "%s\t-\t-\t-\t-\tskipped: %v\n", dep, errs[dep])
	}
	tw.Flush()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
