// cmd/tools/table-check/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"eligibility-engine/internal/common/logger"
	"eligibility-engine/internal/common/workerpool"
	"eligibility-engine/internal/decision"
	"eligibility-engine/internal/eligibility"
	"eligibility-engine/pkg/registry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		help(stderr)
		return 1
	}

	switch args[0] {
	case "validate":
		return validateTable(args[1:], stdout, stderr)
	case "evaluate":
		return evaluate(args[1:], stdout, stderr)
	case "tools":
		return validateTools(args[1:], stdout, stderr)
	default:
		help(stderr)
		return 1
	}
}

func validateTable(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "Path to decision table (empty checks the embedded table)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var table *decision.Table
	var err error
	if *path == "" {
		table, err = decision.Default()
	} else {
		table, err = decision.LoadFile(*path)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error loading table: %v\n", err)
		return 1
	}

	if _, err := decision.NewEngine(table); err != nil {
		fmt.Fprintf(stderr, "Error compiling table: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Table %s %s is valid (%d rules, %d derived fields)\n",
		table.Name, table.Version, len(table.Rules), len(table.Derived))
	return 0
}

func evaluate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "Path to decision table (empty uses the embedded table)")
	payload := fs.String("payload", "", `Flat JSON payload, e.g. {"relationship":"son","situation":"illness","is_single_parent":false}`)
	file := fs.String("file", "", "Read the payload from this file instead")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw := []byte(*payload)
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading payload: %v\n", err)
			return 1
		}
		raw = data
	}

	adapter, err := eligibility.LoadAdapter(*path)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading table: %v\n", err)
		return 1
	}

	pool := workerpool.New(1, 1, logger.NewNoOpLogger())
	defer pool.Close()

	svc, err := eligibility.NewService(eligibility.ServiceOptions{Adapter: adapter, Pool: pool})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	p, err := eligibility.DecodePayload(raw)
	if err == nil {
		var resp *eligibility.EvaluationResponse
		resp, err = svc.Evaluate(context.Background(), p)
		if err == nil {
			text, renderErr := eligibility.RenderToolResult(resp)
			if renderErr != nil {
				fmt.Fprintf(stderr, "Error: %v\n", renderErr)
				return 1
			}
			fmt.Fprintln(stdout, text)
			return 0
		}
	}

	fmt.Fprintln(stderr, eligibility.RenderToolError(err))
	return 1
}

func validateTools(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tools", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "Path to tool registry (empty checks the embedded registry)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var reg *registry.ToolRegistry
	if *path == "" {
		reg = registry.Default()
	} else {
		var err error
		reg, err = registry.LoadRegistry(*path)
		if err != nil {
			fmt.Fprintf(stderr, "Validation failed: %v\n", err)
			return 1
		}
	}

	fmt.Fprintf(stdout, "Registry %s is valid with %d tools:\n", reg.Version, len(reg.Tools))
	for _, t := range reg.Tools {
		fmt.Fprintf(stdout, "  - %s (%s)\n", t.Name, t.TaskType)
	}
	return 0
}

func help(w io.Writer) {
	fmt.Fprintln(w, "Usage: table-check <command> [flags]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  validate  Load and compile a decision table")
	fmt.Fprintln(w, "  evaluate  Evaluate one payload against a decision table")
	fmt.Fprintln(w, "  tools     Validate the tool registry")
}
