package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/output"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/pipeline"
)

var (
	flagComponentType string
	flagOutputSuffix  string
	flagOutput        string
)

var topologyCmd = &cobra.Command{
	Use:   "topology <input-file>",
	Short: "Convert a raw dump into a topology document",
	Long: `Convert a raw v1 (array) or v2 ({"entities": [...]}) dump into a topology
document. Unless --output is given the document is written to
{input-stem}_{suffix}_{unix-time}.json in the working directory.

The component type is taken from --component-type, else inferred from the file
name (as written by fetch), else from the entity id prefix of the first record.

Examples:
  dynatrace-topology-builder topology PA_process_v2_1700000000.json
  dynatrace-topology-builder topology dump.json --component-type host --output -`,
	Args: cobra.ExactArgs(1),
	RunE: runTopology,
}

func init() {
	addTopologyFlags()
}

func addTopologyFlags() {
	topologyCmd.Flags().StringVar(&flagComponentType, "component-type", "",
		"Component type: process, process-group or host (inferred when omitted)")
	topologyCmd.Flags().StringVar(&flagOutputSuffix, "output-suffix", "topology", "Suffix for the output file name")
	topologyCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file path (use '-' for stdout)")
}

func runTopology(cmd *cobra.Command, args []string) error {
	input := args[0]

	var componentType model.ComponentType
	if flagComponentType != "" {
		t, err := model.ParseComponentType(flagComponentType)
		if err != nil {
			return err
		}
		componentType = t
	}

	fmt.Fprintf(os.Stderr, "Reading input file: %s\n", input)
	now := time.Now()
	doc, err := pipeline.ConvertFile(cmd.Context(), input, pipeline.ConvertOptions{
		ComponentType: componentType,
		Timestamp:     now,
	})
	if err != nil {
		return err
	}

	outPath := flagOutput
	if outPath == "" {
		outPath = output.TopologyFileName(input, flagOutputSuffix, now)
	}
	if err := output.WriteJSON(outPath, doc); err != nil {
		return fmt.Errorf("failed to write topology: %w", err)
	}

	if outPath != output.Stdout {
		fmt.Fprintf(os.Stderr, "Wrote topology to %s\n", outPath)
	}
	printSummary(doc)
	return nil
}

func printSummary(doc *model.Document) {
	fmt.Fprintf(os.Stderr, "  Components:    %d\n", doc.Metadata.ComponentCount)
	fmt.Fprintf(os.Stderr, "  Relationships: %d\n", doc.Metadata.RelationshipCount)
	if doc.Metadata.SkippedRecords > 0 || doc.Metadata.SkippedRelationships > 0 {
		fmt.Fprintf(os.Stderr, "  Skipped:       %d record(s), %d relationship(s)\n",
			doc.Metadata.SkippedRecords, doc.Metadata.SkippedRelationships)
	}

	g := model.NewGraph(doc)
	counts := g.CountByType()
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(os.Stderr, "    %-24s %d\n", t, counts[t])
	}
	if dangling := g.Dangling(); len(dangling) > 0 {
		fmt.Fprintf(os.Stderr, "  External endpoints: %d\n", len(dangling))
	}
	if top := g.MostReferenced(5); len(top) > 0 {
		fmt.Fprintf(os.Stderr, "  Most referenced:\n")
		for _, e := range top {
			fmt.Fprintf(os.Stderr, "    %-40s in=%d out=%d\n", e.ID, e.Incoming, e.Outgoing)
		}
	}
}
