// Command ask answers one question about a local CSV file without the HTTP
// layer.
//
//	go run ./cmd/ask -csv cars.csv -question "visualize mpg"
//	go run ./cmd/ask -csv cars.csv -json "what is the average price?"
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	agent "github.com/Protocol-Lattice/go-dataviz-agent"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/adk"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/config"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
)

var (
	flagConfig   = flag.String("config", "", "Path to a YAML config file")
	flagCSV      = flag.String("csv", "", "CSV file to load (required)")
	flagQuestion = flag.String("question", "", "Question to ask; trailing arguments are used when empty")
	flagProvider = flag.String("provider", "", "Override the configured provider")
	flagModel    = flag.String("model", "", "Override the configured model name")
	flagJSON     = flag.Bool("json", false, "Print the answer as JSON")
	flagVerbose  = flag.Bool("v", false, "Log the loop to stderr")
	flagTimeout  = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
)

type output struct {
	Kind          string   `json:"kind"`
	Response      string   `json:"response,omitempty"`
	Specification any      `json:"specification,omitempty"`
	Description   string   `json:"description,omitempty"`
	Tools         []string `json:"tools,omitempty"`
	Iterations    int      `json:"iterations"`
}

func main() {
	flag.Parse()
	if err := run(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(w io.Writer) error {
	question := strings.TrimSpace(*flagQuestion)
	if question == "" {
		question = strings.TrimSpace(strings.Join(flag.Args(), " "))
	}
	if *flagCSV == "" || question == "" {
		return errors.New("both -csv and a question are required")
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		return err
	}
	if *flagProvider != "" {
		cfg.Model.Provider = *flagProvider
	}
	if *flagModel != "" {
		cfg.Model.Name = *flagModel
	}

	logger := logging.NewNop()
	if *flagVerbose {
		if logger, err = logging.NewStructured("debug", "console"); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	kit, err := adk.New(ctx, *cfg, adk.WithLogger(logger))
	if err != nil {
		return err
	}
	defer kit.Close()

	f, err := os.Open(*flagCSV)
	if err != nil {
		return err
	}
	snap, err := dataset.ReadCSV(f, dataset.LoadOptions{SampleSize: cfg.Dataset.SampleSize})
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", *flagCSV, err)
	}

	svc := kit.Service()
	svc.Upload(snap)
	answer, err := svc.Ask(ctx, question)
	if err != nil {
		return err
	}
	return render(w, answer, *flagJSON)
}

func render(w io.Writer, answer agent.Answer, asJSON bool) error {
	out := output{Kind: string(answer.Kind)}
	if answer.Result != nil {
		out.Iterations = answer.Result.Iterations
		for _, inv := range answer.Result.Invocations {
			out.Tools = append(out.Tools, inv.Name)
		}
	}
	if answer.Kind == agent.AnswerChart {
		out.Specification = answer.Chart
		out.Description = answer.Description
	} else {
		out.Response = answer.Text
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if answer.Kind != agent.AnswerChart {
		_, err := fmt.Fprintln(w, out.Response)
		return err
	}
	spec, err := json.MarshalIndent(answer.Chart, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n\n%s\n", spec, out.Description)
	return err
}
