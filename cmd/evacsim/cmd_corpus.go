package main

import (
	"fmt"
	"strings"

	"github.com/ashureev/evac-dialogue/internal/corpus"
	"github.com/spf13/cobra"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus [path]",
	Short: "Summarize a dialogue corpus and report skipped lines",
	Long: `Loads the corpus at path (default CORPUS_PATH) and prints the example
count per character and category, followed by every malformed line that
was skipped. Exits non-zero when the file cannot be read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCorpus,
}

func runCorpus(cmd *cobra.Command, args []string) error {
	path := cfg.CorpusPath
	if len(args) == 1 {
		path = args[0]
	}
	c, err := corpus.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	characters := append([]string{corpus.OperatorID}, c.Characters()...)
	for _, character := range characters {
		categories := c.Categories(character)
		if len(categories) == 0 {
			continue
		}
		counts := make([]string, 0, len(categories))
		for _, category := range categories {
			counts = append(counts, fmt.Sprintf("%s=%d", category, len(c.Get(character, category))))
		}
		fmt.Fprintf(out, "%s: %s\n", character, strings.Join(counts, " "))
	}

	warnings := c.Warnings()
	fmt.Fprintf(out, "%d characters, %d skipped lines\n", len(c.Characters()), len(warnings))
	for _, w := range warnings {
		fmt.Fprintf(out, "  %v\n", w)
	}
	return nil
}
