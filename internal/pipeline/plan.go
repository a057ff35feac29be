package pipeline

import (
	"context"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/graph"
	"github.com/couchcryptid/climate-risk-service/internal/indices"
	"github.com/couchcryptid/climate-risk-service/internal/risk"
	"github.com/couchcryptid/climate-risk-service/internal/zonal"
)

// classAreaKey names the land-cover area branch in reports.
const classAreaKey = "classArea"

// branch is one reported indicator.
type branch struct {
	key    string
	label  string
	result *graph.Node[domain.IndicatorResult]
}

// plan is the deferred graph of one run. Nothing runs until its terminals
// are forced.
type plan struct {
	run        *run
	branches   []branch
	composite  *graph.Node[domain.CompositeResult]
	indicators []string
	classAreas *graph.Node[map[int]float64]
}

// add registers a reported indicator whose result summarizes in over the AOI
// and exports it when asked.
func (p *plan) add(key, label string, in *graph.Node[indices.DerivedRaster], export bool) {
	r := p.run
	res := graph.Map(key+" summary", in, func(ctx context.Context, d indices.DerivedRaster) (domain.IndicatorResult, error) {
		summary, err := r.summarize(ctx, d)
		if err != nil {
			return domain.IndicatorResult{}, err
		}
		out := domain.IndicatorResult{
			Name:              key,
			Label:             d.Name,
			Range:             d.Range,
			Summary:           summary,
			SkippedFrames:     d.SkippedFrames,
			DegenerateSamples: d.Degenerate,
		}
		r.o.logger.Info("indicator summarized",
			"run_id", r.req.ID, "indicator", key, "summary", zonal.String(*summary),
			"skipped_frames", d.SkippedFrames, "degenerate_samples", d.Degenerate)
		if export {
			uri, err := r.export(ctx, key, d)
			if err != nil {
				out.Error = "export: " + err.Error()
			}
			out.ExportURI = uri
		}
		return out, nil
	})
	p.branches = append(p.branches, branch{key: key, label: label, result: res})
}

// terminals lists every node whose value ends up in the report.
func (p *plan) terminals() []graph.Forcer {
	out := make([]graph.Forcer, 0, len(p.branches)+2)
	for _, b := range p.branches {
		out = append(out, b.result)
	}
	if p.composite != nil {
		out = append(out, p.composite)
	}
	if p.classAreas != nil {
		out = append(out, p.classAreas)
	}
	return out
}

// assemble copies forced results into report, ordered by indicator name.
// Terminals are memoized, so forcing them again only reads the cached value
// or error.
func (p *plan) assemble(ctx context.Context, report *domain.Report) {
	for _, b := range p.branches {
		res, err := b.result.Force(ctx)
		if err != nil {
			p.fail(b.key, err)
			res = domain.IndicatorResult{
				Name:  b.key,
				Label: b.label,
				Range: indices.DisplayRanges[b.label],
				Error: err.Error(),
			}
		}
		report.Indicators = append(report.Indicators, res)
	}
	if p.composite != nil {
		res, err := p.composite.Force(ctx)
		if err != nil {
			p.fail(p.composite.Name(), err)
			res = domain.CompositeResult{Indicators: p.indicators, Error: err.Error()}
		}
		report.Composite = &res
	}
	if p.classAreas != nil {
		areas, err := p.classAreas.Force(ctx)
		if err != nil {
			p.fail(classAreaKey, err)
			report.Indicators = append(report.Indicators, domain.IndicatorResult{
				Name:  classAreaKey,
				Label: indices.NameLandCover,
				Error: err.Error(),
			})
		} else {
			report.ClassAreas = areas
		}
	}
	report.SortIndicators()
}

func (p *plan) fail(key string, err error) {
	r := p.run
	reason := failureReason(err)
	r.o.metrics.BranchFailures.WithLabelValues(key, reason).Inc()
	if reason == "pixel_budget" {
		r.o.metrics.PixelBudgetRejections.Inc()
	}
	r.o.logger.Warn("branch failed", "run_id", r.req.ID, "indicator", key, "reason", reason, "error", err)
}

// compose defers the composite over the policy's indicators. Each input is
// resampled onto the AOI grid at the run scale before classification; a
// failed input fails the composite.
func (p *plan) compose(policy risk.Policy, inputs map[string]*graph.Node[indices.DerivedRaster]) {
	r := p.run
	p.indicators = policy.Indicators()
	p.composite = graph.New("composite", func(ctx context.Context) (domain.CompositeResult, error) {
		aligned := make(map[string]indices.DerivedRaster, len(p.indicators))
		for _, name := range p.indicators {
			node, ok := inputs[name]
			if !ok {
				return domain.CompositeResult{}, missingIndicator(name)
			}
			d, err := node.Force(ctx)
			if err != nil {
				return domain.CompositeResult{}, err
			}
			if aligned[name], err = r.align(d, r.req.Scale); err != nil {
				return domain.CompositeResult{}, err
			}
		}
		score, err := risk.Compose(aligned, policy.Thresholds, policy.Comparisons)
		if err != nil {
			return domain.CompositeResult{}, err
		}

		out := domain.CompositeResult{Indicators: score.Indicators}
		if out.Vulnerability, err = r.summarize(ctx, score.Vulnerability()); err != nil {
			return domain.CompositeResult{}, err
		}
		if out.Hazard, err = r.summarize(ctx, score.Hazard()); err != nil {
			return domain.CompositeResult{}, err
		}
		riskRaster := score.Risk()
		if out.Risk, err = r.summarize(ctx, riskRaster); err != nil {
			return domain.CompositeResult{}, err
		}
		uri, err := r.export(ctx, "risk", riskRaster)
		if err != nil {
			out.Error = "export: " + err.Error()
		}
		out.ExportURI = uri
		r.o.logger.Info("composite summarized",
			"run_id", r.req.ID, "indicators", len(score.Indicators), "risk", zonal.String(*out.Risk))
		return out, nil
	})
}
