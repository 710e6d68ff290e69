package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/handbook-assistant/server/internal/agent/graph/observers"
	"github.com/handbook-assistant/server/internal/evaluation"
)

var (
	evalOut         string
	evalStructure   string
	evalNodes       string
	evalLash        string
	evalConcurrency int
	evalStrict      bool
	evalWeights     string
	evalThresholds  string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the assistant",
	Long: `Evaluation suites. Case files default to the ones built into the binary;
point the flags at your own YAML files to override them.`,
}

var evalGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Check the graph structure and score each node on labelled cases",
	RunE:  runEvalGraph,
}

var evalLashCmd = &cobra.Command{
	Use:   "lash",
	Short: "Score end-to-end answers on latency, accuracy, safety and helpfulness",
	RunE:  runEvalLash,
}

func init() {
	evalCmd.PersistentFlags().StringVar(&evalOut, "out", "", "write the JSON report to this path")
	evalCmd.PersistentFlags().BoolVar(&evalStrict, "strict", false, "exit non-zero when the evaluation does not pass")

	evalGraphCmd.Flags().StringVar(&evalStructure, "structure", "", "graph structure YAML")
	evalGraphCmd.Flags().StringVar(&evalNodes, "nodes", "", "node cases YAML")

	evalLashCmd.Flags().StringVar(&evalLash, "cases", "", "LASH suites YAML")
	evalLashCmd.Flags().IntVar(&evalConcurrency, "concurrency", 4, "judge calls in flight")
	evalLashCmd.Flags().StringVar(&evalWeights, "weights", "", "LASH weights as latency,correctness,safety,helpfulness (overrides LASH_WEIGHT_*)")
	evalLashCmd.Flags().StringVar(&evalThresholds, "thresholds", "", "LASH thresholds as latency,correctness,safety,helpfulness[,lash] (overrides LASH_THRESHOLD_*)")

	evalCmd.AddCommand(evalGraphCmd)
	evalCmd.AddCommand(evalLashCmd)
}

func runEvalGraph(cmd *cobra.Command, _ []string) error {
	structure, err := evaluation.LoadStructure(evalStructure)
	if err != nil {
		return err
	}
	cases, err := evaluation.LoadNodeCases(evalNodes)
	if err != nil {
		return err
	}

	a, err := buildAgent(cmd.Context(), appCfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := evaluation.NewNodeEvaluator(a.Runner, cases,
		evaluation.NewStructureEvaluator(structure),
		evaluation.WithThreadReset(a.Store),
	).Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := report.WriteSummary(cmd.OutOrStdout()); err != nil {
		return err
	}
	writeUsage(cmd.OutOrStdout(), a.Usage.Summary())
	if evalOut != "" {
		if err := evaluation.WriteJSON(evalOut, report); err != nil {
			return err
		}
	}
	if evalStrict && report.GraphScore < 0.8 {
		return fmt.Errorf("graph score %.1f%% below 80%%", report.GraphScore*100)
	}
	return nil
}

func runEvalLash(cmd *cobra.Command, _ []string) error {
	cases, err := evaluation.LoadLashCases(evalLash)
	if err != nil {
		return err
	}
	scoring, err := lashScoring(appCfg.Lash, evalWeights, evalThresholds)
	if err != nil {
		return err
	}

	a, err := buildAgent(cmd.Context(), appCfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	judge, err := newJudge(cmd.Context(), appCfg, a)
	if err != nil {
		return err
	}

	report, err := evaluation.NewLashEvaluator(a.Runner, judge, cases,
		evaluation.WithWeights(scoring.Weights),
		evaluation.WithThresholds(scoring.Thresholds),
		evaluation.WithJudgeConcurrency(evalConcurrency),
		evaluation.WithLashThreadReset(a.Store),
	).Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := report.WriteSummary(cmd.OutOrStdout()); err != nil {
		return err
	}
	writeUsage(cmd.OutOrStdout(), a.Usage.Summary())
	if evalOut != "" {
		if err := evaluation.WriteJSON(evalOut, report); err != nil {
			return err
		}
	}
	if evalStrict && !report.Pass {
		return fmt.Errorf("lash score %.3f did not pass", report.Composite)
	}
	return nil
}

// lashScoring applies the --weights and --thresholds overrides to the
// configured scoring and validates the result.
func lashScoring(cfg evaluation.LashConfig, weights, thresholds string) (evaluation.LashConfig, error) {
	if weights != "" {
		w, err := evaluation.ParseWeights(weights)
		if err != nil {
			return evaluation.LashConfig{}, err
		}
		cfg.Weights = w
	}
	if thresholds != "" {
		t, err := evaluation.ParseThresholds(thresholds, cfg.Thresholds)
		if err != nil {
			return evaluation.LashConfig{}, err
		}
		cfg.Thresholds = t
	}
	if err := cfg.Weights.Validate(); err != nil {
		return evaluation.LashConfig{}, err
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return evaluation.LashConfig{}, err
	}
	return cfg, nil
}

func writeUsage(w io.Writer, s observers.UsageSummary) {
	fmt.Fprintf(w, "\nmodel calls: %d  tokens in/out: %d/%d  cost: $%.4f\n",
		s.Calls, s.PromptTokens, s.CompletionTokens, s.CostUSD)
	for _, m := range s.Models {
		fmt.Fprintf(w, "  %s: %d calls, $%.4f\n", m.Model, m.Calls, m.Cost.Total())
	}
}
