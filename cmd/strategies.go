package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-finder/internal/config"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies [name]",
	Short: "List the scoring strategies",
	Long: `List the built-in scoring strategies and those loaded from
MATCH_STRATEGIES_FILE. With a name, print that strategy as YAML.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStrategies,
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}

func runStrategies(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		s, err := registry.Get(args[0])
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(s)
	}

	active := cfg.Matching.Strategy
	if active == "" {
		active = registry.Default()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTOR\tTHRESHOLD\tTOP K\tMETRICS")
	for _, s := range registry.List() {
		name := s.Name
		if name == active {
			name += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%d\t%s\n", name, s.Descriptor, s.Threshold, s.TopK, strings.Join(s.Metrics(), ","))
	}
	return w.Flush()
}
