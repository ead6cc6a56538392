package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/expert"
)

var (
	diagnoseAnswers   []string
	diagnoseKnowledge string
	diagnoseJSON      bool
	diagnoseStrict    bool
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Diagnose motor faults from questionnaire answers",
	Long: `Run the certainty-factor diagnosis engine on operator answers.

Each answer is <symptomId>=<No|Rarely|Yes>. Symptoms that are not answered
count as "No". Use "mechasense knowledge show" to list the questions.`,
	Example: `  mechasense diagnose --answer 10=Yes --answer 5=Yes
  mechasense diagnose -a 7=Rarely -a 2=Yes --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kb, err := loadKnowledgeBase(diagnoseKnowledge)
		if err != nil {
			return err
		}
		engine := expert.NewEngine(kb)

		answers, err := parseAnswers(diagnoseAnswers)
		if err != nil {
			return err
		}
		if diagnoseStrict {
			if err := engine.ValidateAnswers(answers); err != nil {
				return err
			}
		}

		results := engine.Diagnose(answers)
		if diagnoseJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		printResults(cmd.OutOrStdout(), results)
		return nil
	},
}

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Inspect and validate diagnosis knowledge bases",
}

var knowledgeValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a knowledge base YAML file (default: embedded)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		kb, err := loadKnowledgeBase(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d symptoms, %d rules)\n",
			knowledgeSource(path), len(kb.Symptoms()), len(kb.Rules()))
		return nil
	},
}

var knowledgeShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "List the questionnaire symptoms and diagnostic rules",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		kb, err := loadKnowledgeBase(path)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCODE\tCF\tQUESTION")
		for _, s := range kb.Symptoms() {
			fmt.Fprintf(tw, "%d\t%s\t%.1f\t%s\n", s.ID, s.Code, s.CFExpert, s.Question)
		}
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "RULE\tOP\tLEVEL\tSYMPTOMS\tDAMAGE")
		for _, r := range kb.Rules() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", r.ID, r.Operator, r.Level, r.Symptoms, r.Damage)
		}
		return tw.Flush()
	},
}

func init() {
	diagnoseCmd.Flags().StringArrayVarP(&diagnoseAnswers, "answer", "a", nil, "answer as <symptomId>=<No|Rarely|Yes> (repeatable)")
	diagnoseCmd.Flags().StringVar(&diagnoseKnowledge, "knowledge", "", "knowledge base YAML file (default: embedded)")
	diagnoseCmd.Flags().BoolVar(&diagnoseJSON, "json", false, "print results as JSON")
	diagnoseCmd.Flags().BoolVar(&diagnoseStrict, "strict", false, "reject unknown symptoms and levels")

	knowledgeCmd.AddCommand(knowledgeValidateCmd)
	knowledgeCmd.AddCommand(knowledgeShowCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(knowledgeCmd)
}

// parseAnswers turns "id=Level" pairs into an answer map. Level names are
// matched case-insensitively; a repeated symptom keeps its last answer.
func parseAnswers(pairs []string) (map[int]domain.FuzzyLevel, error) {
	answers := make(map[int]domain.FuzzyLevel, len(pairs))
	for _, pair := range pairs {
		idText, levelText, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid answer %q: expected <symptomId>=<level>", pair)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idText))
		if err != nil {
			return nil, fmt.Errorf("invalid symptom id in %q: %w", pair, err)
		}
		answers[id] = canonicalLevel(strings.TrimSpace(levelText))
	}
	return answers, nil
}

func canonicalLevel(s string) domain.FuzzyLevel {
	for _, level := range []domain.FuzzyLevel{domain.FuzzyNo, domain.FuzzyRarely, domain.FuzzyYes} {
		if strings.EqualFold(s, string(level)) {
			return level
		}
	}
	return domain.FuzzyLevel(s)
}

func printResults(w io.Writer, results []domain.DiagnosisResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No fault diagnosed.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tLEVEL\tCONFIDENCE\tCERTAINTY\tDAMAGE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%s\t%s\n", r.RuleID, r.Level, r.Confidence*100, r.Certainty, r.Damage)
	}
	tw.Flush()

	fmt.Fprintln(w)
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s: %s\n", i+1, r.RuleID, r.Solution)
	}
}
