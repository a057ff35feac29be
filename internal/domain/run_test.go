package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRangeContains(t *testing.T) {
	r := MustDateRange("2023-01-01", "2023-12-31")

	assert.True(t, r.Contains(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.Contains(time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC)), "end date is inclusive")
	assert.False(t, r.Contains(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2022, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestDateRangeJSON(t *testing.T) {
	var r DateRange
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2001-01-01","end":"2015-12-31T00:00:00Z"}`), &r))
	assert.Equal(t, MustDateRange("2001-01-01", "2015-12-31"), r)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2001-01-01","end":"2015-12-31"}`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`{"start":"yesterday","end":"2015-12-31"}`), &r))
}

func TestRunRequestDefaults(t *testing.T) {
	req := RunRequest{Region: FeatureFilter{Field: "District", Value: "WAYANAD"}}.WithDefaults()

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, KindClimateRisk, req.Kind)
	assert.Equal(t, DefaultScale, req.Scale)
	assert.Equal(t, DefaultMaxPixels, req.MaxPixels)
	assert.Equal(t, MustDateRange("2001-01-01", "2015-12-31"), req.Baseline)
	require.NoError(t, req.Validate())

	runoff := RunRequest{Kind: KindRunoff, Region: req.Region}.WithDefaults()
	assert.Equal(t, DefaultExportScale, runoff.ExportScale)
	assert.Equal(t, MustDateRange("2023-11-01", "2023-12-31"), runoff.Current)
	require.NoError(t, runoff.Validate())
}

func TestRunRequestWithID(t *testing.T) {
	req := RunRequest{Kind: KindRunoff}.WithID()
	assert.NotEmpty(t, req.ID)
	assert.True(t, req.Current.IsZero(), "WithID fills only the ID")
	assert.Equal(t, "keep", RunRequest{ID: "keep"}.WithID().ID)
}

func TestRunRequestValidate(t *testing.T) {
	base := RunRequest{Region: FeatureFilter{Field: "District", Value: "WAYANAD"}}.WithDefaults()

	tests := []struct {
		name   string
		mutate func(*RunRequest)
		want   string
	}{
		{"unknown kind", func(r *RunRequest) { r.Kind = "flood" }, "unknown run kind"},
		{"missing region", func(r *RunRequest) { r.Region.Value = "" }, "region"},
		{"negative scale", func(r *RunRequest) { r.Scale = -1 }, "scale"},
		{"inverted window", func(r *RunRequest) { r.Current = MustDateRange("2020-01-02", "2020-01-01") }, "current window"},
		{"overlapping anomaly windows", func(r *RunRequest) {
			r.Current = MustDateRange("2010-01-01", "2023-12-31")
		}, "overlaps baseline window"},
		{"windows sharing a day", func(r *RunRequest) {
			r.Current = MustDateRange("2015-12-31", "2023-12-31")
		}, "overlaps baseline window"},
		{"bad threshold", func(r *RunRequest) {
			r.Thresholds = map[string]ThresholdSpec{IndicatorLST: {Low: 3, Mid: 2, High: 1}}
		}, "threshold lst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDateRange_Overlaps(t *testing.T) {
	baseline := MustDateRange("2001-01-01", "2015-12-31")
	tests := []struct {
		name  string
		other DateRange
		want  bool
	}{
		{"disjoint after", MustDateRange("2016-01-01", "2023-12-31"), false},
		{"disjoint before", MustDateRange("1990-01-01", "2000-12-31"), false},
		{"shared end day", MustDateRange("2015-12-31", "2016-06-30"), true},
		{"contained", MustDateRange("2005-01-01", "2006-01-01"), true},
		{"spanning", MustDateRange("2000-01-01", "2020-01-01"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, baseline.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(baseline))
		})
	}
}

func TestNewReportUsesClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	req := RunRequest{Region: FeatureFilter{Field: "District", Value: "WAYANAD"}}.WithDefaults()
	rep := NewReport(req)

	assert.Equal(t, fixed, rep.GeneratedAt)
	assert.Equal(t, req.ID, rep.RunID)
	assert.False(t, rep.Failed())

	rep.Indicators = append(rep.Indicators, IndicatorResult{Name: IndicatorLST, Error: "empty reduction"})
	assert.True(t, rep.Failed())
}

func TestPixelBudgetError(t *testing.T) {
	var err error = &PixelBudgetError{Pixels: 2000, MaxPixels: 1000, Scale: 30}
	assert.ErrorIs(t, err, ErrPixelBudgetExceeded)
	assert.Contains(t, err.Error(), "2000")
}
