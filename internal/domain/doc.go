// Package domain models the inputs and outputs of a climate-risk run.
//
// # Runs
//
// A run is scoped by an area of interest (AOI) and one or more closed date
// windows. The AOI is never supplied as raw geometry by a caller; it is
// named by an attribute filter such as {Field: "District", Value: "WAYANAD"}
// and resolved against a vector feature store. An empty resolution is a
// reportable outcome ([ErrAOINotFound]) and stops the run before any
// gridded dataset is touched.
//
// Two run kinds exist:
//
//	climate-risk  soil moisture, NDVI, LST, elevation, drought and anomaly
//	              indicators fused into a composite threshold count
//	runoff        SCS curve-number surface runoff from precipitation and
//	              land cover
//
// # Thresholds
//
// Each indicator carries a [ThresholdSpec] {low, mid, high} and a
// [Comparison] choosing the operator and which breakpoint it is tested
// against. Comparisons are fixed policy per indicator, for example NDVI
// flags a pixel when NDVI <= low while LST flags it when LST >= mid.
// Specs are validated at configuration time: low <= mid <= high.
//
// Default breakpoints:
//
//	soilMoisture          -15    0      19     <= mid
//	ndvi                  0.3    0.5    0.7    <= low
//	lst                   290    305    324    >= mid   (kelvin)
//	dem                   122    1000   2214   <= mid   (metres)
//	droughtIndex          -0.3   0      0.3    <= mid
//	tempAnomaly           -10    20     62     <= mid
//	precipitationAnomaly  0      500    1000   <  mid   (millimetres)
//
// # Errors
//
// Structural failures are sentinel errors that callers match with
// errors.Is. Per-pixel degeneracies (zero denominators) never surface as
// errors; they become no-data or a physical limiting value.
package domain
