package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"document-processor/internal/pricing"
)

// confirm asks to proceed. Answering with a model name switches to it.
func confirm(in io.Reader, out io.Writer, table *pricing.Table, model string) (string, bool, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "Proceed with %s? [y/n/<model>]: ", model)
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				return model, false, nil
			}
			return model, false, err
		}

		answer := strings.TrimSpace(line)
		switch strings.ToLower(answer) {
		case "y", "yes":
			return model, true, nil
		case "n", "no", "":
			return model, false, nil
		}
		if table.Has(answer) {
			fmt.Fprintf(out, "Switching to %s\n", answer)
			return answer, true, nil
		}
		fmt.Fprintf(out, "Unknown model %q. Known models: %s\n", answer, strings.Join(modelNames(table), ", "))
	}
}

func modelNames(table *pricing.Table) []string {
	entries := table.Models()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Model
	}
	return names
}
