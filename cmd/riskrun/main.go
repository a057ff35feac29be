// Command riskrun executes one climate-risk or runoff run against a local
// GeoTIFF catalog and prints the report.
//
// Usage:
//
//	go run ./cmd/riskrun \
//	  -catalog data/catalog.json -aoi data/aoi.geojson \
//	  -field District -value WAYANAD -kind climate-risk
//
//	go run ./cmd/riskrun -synthetic -kind runoff -format text
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/couchcryptid/climate-risk-service/internal/adapter/geojsonfile"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/geotiff"
	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/observability"
	"github.com/couchcryptid/climate-risk-service/internal/pipeline"
	"github.com/couchcryptid/climate-risk-service/internal/source"
	"github.com/couchcryptid/climate-risk-service/internal/synthetic"
	"github.com/couchcryptid/climate-risk-service/internal/zonal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "riskrun:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("riskrun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	catalogPath := fs.String("catalog", "data/catalog.json", "GeoTIFF scene manifest")
	aoiPath := fs.String("aoi", "data/aoi.geojson", "GeoJSON FeatureCollection of boundaries")
	field := fs.String("field", "District", "boundary property to match")
	value := fs.String("value", "", "boundary property value")
	kind := fs.String("kind", string(domain.KindClimateRisk), "run kind: climate-risk or runoff")
	scale := fs.Float64("scale", 0, "zonal scale in metres (default 30)")
	exportDir := fs.String("export-dir", "", "write GeoTIFF exports under this directory")
	format := fs.String("format", "json", "output format: json or text")
	useSynthetic := fs.Bool("synthetic", false, "run against the built-in synthetic world")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := observability.NewLoggerTo(stderr, *logLevel, "text")
	metrics := observability.NewMetricsForTesting()

	var (
		features pipeline.FeatureStore
		backend  source.Backend
		region   = domain.FeatureFilter{Field: *field, Value: *value}
	)
	if *useSynthetic {
		world := synthetic.Default()
		mem := source.NewMemoryBackend()
		world.Populate(mem)
		backend = mem
		features = geojsonfile.New(geojsonfile.Collection(synthetic.Region, world.Features()...))
		if *value == "" {
			region = synthetic.Region
		}
	} else {
		if *value == "" {
			fs.Usage()
			return errors.New("missing required flag: -value")
		}
		gt, err := geotiff.Open(*catalogPath)
		if err != nil {
			return err
		}
		gj, err := geojsonfile.Open(*aoiPath)
		if err != nil {
			return err
		}
		backend, features = gt, gj
	}

	var exporter pipeline.Exporter
	if *exportDir != "" {
		exporter = geotiff.NewExporter(*exportDir)
	}
	fetcher := source.NewAdapter(source.DefaultCatalog(), backend, logger, metrics)
	o := pipeline.NewOrchestrator(features, fetcher, exporter, pipeline.DefaultOptions(), logger, metrics)

	report, err := o.Execute(ctx, domain.RunRequest{
		Kind:   domain.RunKind(*kind),
		Region: region,
		Scale:  *scale,
		Export: exporter != nil,
	})
	if err != nil {
		return err
	}

	switch *format {
	case "text":
		printText(stdout, report)
	default:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	}
	if report.Failed() {
		return errors.New("one or more branches failed")
	}
	return nil
}

func printText(w io.Writer, r *domain.Report) {
	fmt.Fprintf(w, "run %s (%s) %s\n", r.RunID, r.Kind, r.Region)
	for _, ind := range r.Indicators {
		if ind.Error != "" || ind.Summary == nil {
			fmt.Fprintf(w, "  %-22s error: %s\n", ind.Name, ind.Error)
			continue
		}
		line := fmt.Sprintf("  %-22s %s", ind.Name, zonal.String(*ind.Summary))
		if ind.ExportURI != "" {
			line += " -> " + ind.ExportURI
		}
		fmt.Fprintln(w, line)
	}
	if c := r.Composite; c != nil {
		if c.Error != "" {
			fmt.Fprintf(w, "  %-22s error: %s\n", "composite", c.Error)
		} else {
			fmt.Fprintf(w, "  %-22s %s\n", "vulnerability", zonal.String(*c.Vulnerability))
			fmt.Fprintf(w, "  %-22s %s\n", "risk", zonal.String(*c.Risk))
		}
	}
	if len(r.ClassAreas) > 0 {
		classes := make([]int, 0, len(r.ClassAreas))
		for c := range r.ClassAreas {
			classes = append(classes, c)
		}
		slices.Sort(classes)
		parts := make([]string, 0, len(classes))
		for _, c := range classes {
			parts = append(parts, fmt.Sprintf("%d=%.4f", c, r.ClassAreas[c]))
		}
		fmt.Fprintf(w, "  %-22s %s (total %.4f km²)\n", "class areas", strings.Join(parts, " "), zonal.TotalArea(r.ClassAreas))
	}
}
