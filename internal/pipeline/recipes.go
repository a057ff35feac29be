package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/graph"
	"github.com/couchcryptid/climate-risk-service/internal/indices"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
	"github.com/couchcryptid/climate-risk-service/internal/risk"
	"github.com/couchcryptid/climate-risk-service/internal/runoff"
	"github.com/couchcryptid/climate-risk-service/internal/source"
	"github.com/couchcryptid/climate-risk-service/internal/zonal"
)

// Report keys of indicators that are summarized but not classified.
const (
	KeyTotalPrecipitation = "totalPrecipitation"
	KeyEvapotranspiration = "evapotranspiration"
	KeyRunoff             = "runoff"
	KeyMeanPrecipitation  = "meanPrecipitation"
)

// Band names of the source datasets the recipes read.
const (
	bandVV            = "VV"
	bandRed           = "B4"
	bandNIR           = "B8"
	bandThermal       = "ST_B10"
	bandElevation     = "elevation"
	bandModisLST      = "LST_Day_1km"
	bandPrecipitation = "precipitation"
	bandET            = "ET"
	bandLandCover     = "Map"
)

const (
	// maxCloudPercent keeps optical scenes with less cloud than this.
	maxCloudPercent = 3.0
	// ClassAreaScale is the sampling distance of the land-cover area table.
	ClassAreaScale = 500.0
)

// climateRiskPlan builds the seven classified indicators, two context
// layers and the composite. Shared reductions such as current
// precipitation are single nodes forced once.
func (r *run) climateRiskPlan(policy risk.Policy) *plan {
	req := r.req
	p := &plan{run: r}

	soil := r.derive(domain.IndicatorSoilMoisture, indices.NameSoilMoisture,
		r.reduce("soil moisture", source.Query{
			Dataset: source.DatasetSentinel1,
			Window:  req.Optical,
			Filters: []source.Filter{source.Eq(source.PropInstrumentMode, "IW")},
			Bands:   []string{bandVV},
		}, raster.OpMean, nil), bandVV)

	ndvi := r.derive(domain.IndicatorNDVI, indices.NameNDVI,
		r.reduce("ndvi", source.Query{
			Dataset: source.DatasetSentinel2,
			Window:  req.Optical,
			Filters: []source.Filter{source.Lt(source.PropCloudyPixelPct, maxCloudPercent)},
			Bands:   []string{bandRed, bandNIR},
		}, raster.OpMedian, func(seq raster.Sequence, _, degenerate *indices.Tally) raster.Sequence {
			return indices.NDVISequence(seq, bandNIR, bandRed, degenerate)
		}), indices.NameNDVI)

	lst := r.derive(domain.IndicatorLST, indices.NameLST,
		r.reduce("landsat lst", source.Query{
			Dataset: source.DatasetLandsat8L2,
			Window:  req.Optical,
			Filters: []source.Filter{source.Lt(source.PropCloudCover, maxCloudPercent)},
			Bands:   []string{bandThermal},
		}, raster.OpMedian, func(seq raster.Sequence, skipped, _ *indices.Tally) raster.Sequence {
			return indices.CalibrateSequence(seq, bandThermal, source.PropThermalGainB10, source.PropThermalOffsetB10, skipped)
		}), bandThermal)

	dem := r.derive(domain.IndicatorDEM, indices.NameDEM,
		r.reduce("dem", source.Query{
			Dataset: source.DatasetSRTM,
			Bands:   []string{bandElevation},
		}, raster.OpMean, nil), bandElevation)

	precipCurrent := r.reduce("precipitation current", source.Query{
		Dataset: source.DatasetCHIRPS,
		Window:  req.Current,
		Bands:   []string{bandPrecipitation},
	}, raster.OpSum, nil)
	precipBaseline := r.reduce("precipitation baseline", source.Query{
		Dataset: source.DatasetCHIRPS,
		Window:  req.Baseline,
		Bands:   []string{bandPrecipitation},
	}, raster.OpSum, nil)
	et := r.reduce("evapotranspiration", source.Query{
		Dataset: source.DatasetMODISET,
		Window:  req.Current,
		Bands:   []string{bandET},
	}, raster.OpSum, nil)
	lstCurrent := r.reduce("modis lst current", source.Query{
		Dataset: source.DatasetMODISLST,
		Window:  req.Current,
		Bands:   []string{bandModisLST},
	}, raster.OpMean, nil)
	lstBaseline := r.reduce("modis lst baseline", source.Query{
		Dataset: source.DatasetMODISLST,
		Window:  req.Baseline,
		Bands:   []string{bandModisLST},
	}, raster.OpMean, nil)

	drought := graph.Map2(domain.IndicatorDroughtIndex, precipCurrent, et,
		func(_ context.Context, pr, e reduced) (indices.DerivedRaster, error) {
			pf, err := zonal.Rasterize(pr.frame, bandPrecipitation, r.aoi, req.Scale, req.MaxPixels)
			if err != nil {
				return indices.DerivedRaster{}, err
			}
			ef, err := zonal.Rasterize(e.frame, bandET, r.aoi, req.Scale, req.MaxPixels)
			if err != nil {
				return indices.DerivedRaster{}, err
			}
			return indices.Droughtness(pf, bandPrecipitation, ef, bandET)
		})
	tempAnomaly := r.anomaly(domain.IndicatorTempAnomaly, indices.NameTempAnomaly, lstCurrent, lstBaseline, bandModisLST)
	precipAnomaly := r.anomaly(domain.IndicatorPrecipitationAnomaly, indices.NamePrecipAnomaly, precipCurrent, precipBaseline, bandPrecipitation)

	classified := map[string]*graph.Node[indices.DerivedRaster]{
		domain.IndicatorSoilMoisture:         soil,
		domain.IndicatorNDVI:                 ndvi,
		domain.IndicatorLST:                  lst,
		domain.IndicatorDEM:                  dem,
		domain.IndicatorDroughtIndex:         drought,
		domain.IndicatorTempAnomaly:          tempAnomaly,
		domain.IndicatorPrecipitationAnomaly: precipAnomaly,
	}

	p.add(domain.IndicatorSoilMoisture, indices.NameSoilMoisture, soil, false)
	p.add(domain.IndicatorNDVI, indices.NameNDVI, ndvi, false)
	p.add(domain.IndicatorLST, indices.NameLST, lst, false)
	p.add(domain.IndicatorDEM, indices.NameDEM, dem, false)
	p.add(KeyTotalPrecipitation, indices.NamePrecipitation, r.derive(KeyTotalPrecipitation, indices.NamePrecipitation, precipCurrent, bandPrecipitation), false)
	p.add(KeyEvapotranspiration, indices.NameET, r.derive(KeyEvapotranspiration, indices.NameET, et, bandET), false)
	p.add(domain.IndicatorDroughtIndex, indices.NameDroughtness, drought, false)
	p.add(domain.IndicatorTempAnomaly, indices.NameTempAnomaly, tempAnomaly, false)
	p.add(domain.IndicatorPrecipitationAnomaly, indices.NamePrecipAnomaly, precipAnomaly, false)
	p.compose(policy, classified)
	return p
}

func (r *run) anomaly(name, label string, current, baseline *graph.Node[reduced], band string) *graph.Node[indices.DerivedRaster] {
	return graph.Map2(name, current, baseline, func(_ context.Context, c, b reduced) (indices.DerivedRaster, error) {
		d, err := indices.Anomaly(label, c.frame, b.frame, band)
		if err != nil {
			return indices.DerivedRaster{}, err
		}
		return d.Clip(r.aoi), nil
	})
}

// runoffPlan builds SCS-CN runoff from mean precipitation and the first
// land-cover frame, both resampled to the export scale, plus the land-cover
// class areas.
func (r *run) runoffPlan() *plan {
	req := r.req
	p := &plan{run: r}
	model := runoff.NewModel(nil)

	precip := r.reduce("precipitation mean", source.Query{
		Dataset: source.DatasetCHIRPS,
		Window:  req.Current,
		Bands:   []string{bandPrecipitation},
	}, raster.OpMean, nil)
	landCover := r.first("land cover", source.Query{
		Dataset: source.DatasetWorldCover,
		Window:  req.LandCover,
		Bands:   []string{bandLandCover},
	})

	q := graph.Map2(KeyRunoff, precip, landCover, func(_ context.Context, pr reduced, lc raster.Frame) (indices.DerivedRaster, error) {
		pf, err := zonal.Rasterize(pr.frame, bandPrecipitation, r.aoi, req.ExportScale, req.MaxPixels)
		if err != nil {
			return indices.DerivedRaster{}, err
		}
		lf, err := zonal.Rasterize(lc, bandLandCover, r.aoi, req.ExportScale, req.MaxPixels)
		if err != nil {
			return indices.DerivedRaster{}, err
		}
		return model.Runoff(pf, bandPrecipitation, lf, bandLandCover)
	})

	p.add(KeyRunoff, indices.NameRunoff, q, true)
	p.add(KeyMeanPrecipitation, indices.NameMeanPrecip, r.derive(KeyMeanPrecipitation, indices.NameMeanPrecip, precip, bandPrecipitation), false)
	p.classAreas = graph.Map(classAreaKey, landCover, func(ctx context.Context, lc raster.Frame) (map[int]float64, error) {
		return zonal.ClassArea(ctx, lc, bandLandCover, r.aoi, ClassAreaScale, req.MaxPixels)
	})
	return p
}

func missingIndicator(name string) error {
	return fmt.Errorf("no raster for indicator %s: %w", name, domain.ErrIndicatorMismatch)
}
