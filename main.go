/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/dgroup/pkg/change"
	"github.com/l7mp/dgroup/pkg/grouper"
	"github.com/l7mp/dgroup/pkg/metrics"
	"github.com/l7mp/dgroup/pkg/runner"
	"github.com/l7mp/dgroup/pkg/selector"
	"github.com/l7mp/dgroup/pkg/visualize"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

// Scenario is a recorded sequence of batches to replay.
type Scenario struct {
	Batches []ScenarioBatch `json:"batches"`
}

// ScenarioBatch is either a batch of changes or a regroup request.
type ScenarioBatch struct {
	Regroup bool             `json:"regroup,omitempty"`
	Changes []ScenarioChange `json:"changes,omitempty"`
}

// ScenarioChange is one item change. The item key is derived with the -key expression.
type ScenarioChange struct {
	Reason string                `json:"reason"`
	Item   selector.Unstructured `json:"item"`
}

type outputChange struct {
	Reason string `json:"reason"`
	Group  string `json:"group"`
	Count  int    `json:"count"`
}

type outputBatch struct {
	Batch   int            `json:"batch"`
	Kind    string         `json:"kind"`
	Changes []outputChange `json:"changes"`
	Error   string         `json:"error,omitempty"`
}

type item = selector.Unstructured

func main() {
	var scenarioFile, groupBy, keyBy, output string
	var dumpMetrics bool

	flag.StringVar(&scenarioFile, "scenario", "", "Scenario file to replay (YAML or JSON).")
	flag.StringVar(&groupBy, "group-by", "$.group", "JSONPath expression yielding the group key of an item.")
	flag.StringVar(&keyBy, "key", "$.name", "JSONPath expression yielding the key of an item.")
	flag.StringVar(&output, "output", "json", "Format of the final partition: json, dot or mermaid.")
	flag.BoolVar(&dumpMetrics, "dump-metrics", false, "Print the grouper metrics after the replay.")

	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := zap.New(zap.UseFlagOptions(&opts)).WithName("dgroup")
	setupLog := logger.WithName("setup")
	setupLog.Info(fmt.Sprintf("starting dgroup version %s (%s) built on %s", version, commitHash, buildDate))

	if scenarioFile == "" {
		setupLog.Error(nil, "no scenario given, use -scenario")
		os.Exit(1)
	}

	scenario, err := loadScenario(scenarioFile)
	if err != nil {
		setupLog.Error(err, "unable to load scenario", "file", scenarioFile)
		os.Exit(1)
	}

	sel, err := selector.JSONPath(groupBy)
	if err != nil {
		setupLog.Error(err, "invalid group-by expression")
		os.Exit(1)
	}
	key, err := selector.Key(keyBy)
	if err != nil {
		setupLog.Error(err, "invalid key expression")
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	g := grouper.New[string, item, string](sel, grouper.Options{
		Logger:  logger,
		Metrics: metrics.NewPrometheus(reg, ""),
	})

	if err := replay(context.Background(), g, scenario, key, os.Stdout, logger); err != nil {
		setupLog.Error(err, "replay failed")
		os.Exit(1)
	}

	if err := render(os.Stdout, output, visualize.BuildGraph(scenarioFile, g)); err != nil {
		setupLog.Error(err, "unable to render partition")
		os.Exit(1)
	}

	if dumpMetrics {
		families, err := reg.Gather()
		if err != nil {
			setupLog.Error(err, "unable to gather metrics")
			os.Exit(1)
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(os.Stderr, mf); err != nil {
				setupLog.Error(err, "unable to print metrics")
				os.Exit(1)
			}
		}
	}
}

func loadScenario(file string) (*Scenario, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	s := &Scenario{}
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, err
	}
	return s, nil
}

// toChangeSet converts a scenario batch into a change set keyed with key.
func toChangeSet(b ScenarioBatch, key func(item) (string, error)) (change.ChangeSet[string, item], error) {
	cs := change.ChangeSet[string, item]{}
	for _, c := range b.Changes {
		reason, err := change.ParseReason(c.Reason)
		if err != nil {
			return nil, err
		}
		k, err := key(c.Item)
		if err != nil {
			return nil, fmt.Errorf("cannot key item %v: %w", c.Item, err)
		}
		cs = append(cs, change.Change[string, item]{Reason: reason, Key: k, Current: c.Item})
	}
	return cs, nil
}

// replay feeds the scenario through a runner, one batch at a time so that the upstream path and
// the regroup trigger keep scenario order, and writes one JSON line per batch.
func replay(ctx context.Context, g *grouper.Grouper[string, item, string], s *Scenario,
	key func(item) (string, error), w io.Writer, log logr.Logger) error {
	source := make(chan change.ChangeSet[string, item])
	trigger := make(chan struct{})
	results := make(chan runner.Result[string, item, string])

	r := runner.New[string, item, string](g, source, trigger, func(res runner.Result[string, item, string]) {
		results <- res
	}, runner.Options{Logger: log})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	for i, b := range s.Batches {
		if b.Regroup {
			trigger <- struct{}{}
		} else {
			cs, err := toChangeSet(b, key)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			source <- cs
		}

		res := <-results
		out := outputBatch{Batch: i, Kind: string(res.Kind), Changes: []outputChange{}}
		for _, c := range res.Changes {
			out.Changes = append(out.Changes, outputChange{
				Reason: c.Reason.String(),
				Group:  c.Key,
				Count:  c.Current.Count(),
			})
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		line, err := json.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(line))
	}

	close(source)
	return <-done
}

func render(w io.Writer, format string, graph *visualize.Graph) error {
	switch format {
	case "json":
		b, err := json.Marshal(graph)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	case "dot":
		fmt.Fprintln(w, (&visualize.DotGenerator{}).Generate(graph))
	case "mermaid":
		fmt.Fprint(w, (&visualize.MermaidGenerator{}).Generate(graph))
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}
