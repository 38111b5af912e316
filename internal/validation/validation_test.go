package validation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidahmann/partnergate/internal/reference"
	"github.com/davidahmann/partnergate/pkg/types"
)

type fakeRef struct {
	mu    sync.Mutex
	obs   map[string]reference.Observation
	err   error
	calls int
}

func newFakeRef() *fakeRef {
	return &fakeRef{obs: map[string]reference.Observation{}}
}

func (f *fakeRef) put(indicator, date string, value float64) {
	f.obs[indicator+"|"+date] = reference.Observation{IndicatorCode: indicator, Date: date, Value: value, SourceID: "cby"}
}

func (f *fakeRef) Lookup(_ context.Context, indicator, date string) (reference.Observation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return reference.Observation{}, false, f.err
	}
	obs, ok := f.obs[indicator+"|"+date]
	return obs, ok, nil
}

func fxContract() types.DataContract {
	return types.DataContract{
		ContractID: "fx-rates-daily",
		Frequency:  types.FrequencyDaily,
		RequiredFields: []types.FieldSpec{
			{Name: "date", Type: types.FieldDate, Required: true},
			{Name: "indicator_code", Type: types.FieldString, Required: true},
			{Name: "value", Type: types.FieldNumber, Required: true},
			{Name: "official", Type: types.FieldBoolean},
			{Name: "location", Type: types.FieldGeo},
		},
		RequiredMetadata: types.MetadataRequirements{SourceStatement: true, License: true},
	}
}

func fullMetadata() *types.SubmissionMetadata {
	return &types.SubmissionMetadata{SourceStatement: "exchange bureau survey", License: "CC-BY-4.0"}
}

func TestDecodeSubmissionData(t *testing.T) {
	data, err := DecodeSubmissionData([]byte(`{"records":[{"date":"2024-01-01","value":530.5,"official":true}],"metadata":{"license":"CC-BY-4.0"}}`))
	require.NoError(t, err)
	require.Len(t, data.Records, 1)
	assert.Equal(t, 530.5, data.Records[0]["value"])
	require.NotNil(t, data.Metadata)
	assert.Equal(t, "CC-BY-4.0", data.Metadata.License)

	empty, err := DecodeSubmissionData([]byte(`{"records":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, empty.Records)
	assert.Nil(t, empty.Metadata)
}

func TestDecodeSubmissionDataRejectsBadEnvelope(t *testing.T) {
	cases := map[string]string{
		"malformed":        `{"records":`,
		"missing records":  `{"metadata":{}}`,
		"records object":   `{"records":{"a":1}}`,
		"record scalar":    `{"records":[1,2]}`,
		"array value":      `{"records":[{"value":[1,2]}]}`,
		"unknown key":      `{"records":[],"extra":true}`,
		"unknown metadata": `{"records":[],"metadata":{"owner":"x"}}`,
		"metadata type":    `{"records":[],"metadata":{"license":5}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSubmissionData([]byte(raw))
			require.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}

func TestCheckSchemaCleanRecords(t *testing.T) {
	data := types.SubmissionData{
		Records: []types.Record{
			{"date": "2024-01-01", "indicator_code": "FX_ADEN", "value": 530.0, "official": "true", "location": "12.78,45.03"},
			{"date": "2024-01-02T00:00:00Z", "indicator_code": "FX_ADEN", "value": "531.25", "official": false, "location": map[string]any{"lat": 12.7, "lng": 45.0}},
		},
		Metadata: fullMetadata(),
	}
	res := CheckSchema(data, fxContract())
	assert.True(t, res.Passed)
	assert.Empty(t, res.Errors)
}

func TestCheckSchemaFindings(t *testing.T) {
	data := types.SubmissionData{
		Records: []types.Record{
			{"date": "", "indicator_code": "FX_ADEN", "value": "n/a"},
			{"indicator_code": map[string]any{"x": 1}, "value": 1.0, "date": "01/02/2024", "official": "yes", "location": "95,10"},
			{"date": "2024-01-03", "indicator_code": "FX", "value": nil, "official": ""},
		},
		Metadata: &types.SubmissionMetadata{SourceStatement: "survey"},
	}
	res := CheckSchema(data, fxContract())
	require.False(t, res.Passed)

	byField := map[string]types.ValidationError{}
	for _, e := range res.Errors {
		byField[e.Field] = e
	}
	assert.Equal(t, types.SeverityError, byField["records[0].date"].Severity)
	assert.Contains(t, byField["records[0].value"].Message, "expected number")
	assert.Contains(t, byField["records[1].indicator_code"].Message, "object")
	assert.Contains(t, byField["records[1].date"].Message, "calendar date")
	assert.Contains(t, byField["records[1].official"].Message, "boolean")
	assert.Contains(t, byField["records[1].location"].Message, "lat,lon")
	assert.Contains(t, byField["records[2].value"].Message, "missing")
	assert.Equal(t, types.SeverityWarning, byField["records[2].official"].Severity)
	assert.Equal(t, types.SeverityError, byField["metadata.license"].Severity)
	_, hasSource := byField["metadata.source_statement"]
	assert.False(t, hasSource)
	assert.Len(t, res.Errors, 9)
}

func TestCheckSchemaWarningsDoNotBlock(t *testing.T) {
	data := types.SubmissionData{
		Records:  []types.Record{{"date": "2024-01-01", "indicator_code": "FX", "value": 1.0, "location": " "}},
		Metadata: fullMetadata(),
	}
	res := CheckSchema(data, fxContract())
	assert.True(t, res.Passed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, types.SeverityWarning, res.Errors[0].Severity)
}

func TestCheckSchemaMissingMetadataBlock(t *testing.T) {
	res := CheckSchema(types.SubmissionData{Records: []types.Record{}}, fxContract())
	assert.False(t, res.Passed)
	assert.Len(t, res.Errors, 2)
}

func TestCheckContinuityDuplicates(t *testing.T) {
	records := []types.Record{
		{"date": "2024-01-01", "indicator_code": "FX"},
		{"date": "2024-01-02", "indicator_code": "FX"},
		{"period": "2024-01-01T00:00:00Z", "indicator": " FX "},
		{"date": "2024-01-01", "indicator_code": "FX"},
		{"date": "2024-01-02", "indicator_code": "CPI"},
	}
	res := CheckContinuity(records, types.FrequencyDaily)
	require.False(t, res.Passed)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, types.IssueDuplicate, res.Issues[0].Type)
	assert.Equal(t, []int{0, 2, 3}, res.Issues[0].AffectedRecords)
}

func TestOffsetDateKeepsWrittenDay(t *testing.T) {
	records := []types.Record{
		{"date": "2024-01-01T23:00:00-05:00", "indicator_code": "FX", "value": 100.0},
		{"date": "2024-01-01", "indicator_code": "FX", "value": 100.0},
	}
	res := CheckContinuity(records, types.FrequencyDaily)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, []int{0, 1}, res.Issues[0].AffectedRecords)

	ref := newFakeRef()
	ref.put("FX", "2024-01-01", 100)
	contra, err := CheckContradictions(context.Background(), ref, records[:1], UnavailableFailClosed, 1)
	require.NoError(t, err)
	assert.True(t, contra.Passed)
	assert.Equal(t, 1, ref.calls)
	_, found, _ := ref.Lookup(context.Background(), "FX", "2024-01-02")
	assert.False(t, found)
}

func TestCheckContinuityGaps(t *testing.T) {
	records := []types.Record{
		{"date": "2024-01-05", "indicator_code": "FX"},
		{"date": "2024-01-01", "indicator_code": "FX"},
		{"date": "2024-01-02", "indicator_code": "FX"},
		{"date": "not a date", "indicator_code": "FX"},
	}
	res := CheckContinuity(records, types.FrequencyDaily)
	assert.True(t, res.Passed)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, types.IssueGap, res.Issues[0].Type)
	assert.Equal(t, []int{2, 0}, res.Issues[0].AffectedRecords)

	monthly := CheckContinuity(records, types.FrequencyMonthly)
	assert.Empty(t, monthly.Issues)
}

func TestCheckContinuityOutliers(t *testing.T) {
	records := []types.Record{
		{"value": 10.0}, {"amount_yer": "11"}, {"value": 12.0}, {"price_yer": 13.0}, {"value": 100.0},
	}
	res := CheckContinuity(records, types.FrequencyIrregular)
	assert.True(t, res.Passed)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, types.IssueOutlier, res.Issues[0].Type)
	assert.Equal(t, []int{4}, res.Issues[0].AffectedRecords)

	few := CheckContinuity(records[:4], types.FrequencyIrregular)
	assert.Empty(t, few.Issues)
}

func TestExpectedGapDays(t *testing.T) {
	assert.Equal(t, 1.0, ExpectedGapDays(types.FrequencyDaily))
	assert.Equal(t, 7.0, ExpectedGapDays(types.FrequencyWeekly))
	assert.Equal(t, 30.0, ExpectedGapDays(types.FrequencyMonthly))
	assert.Equal(t, 90.0, ExpectedGapDays(types.FrequencyQuarterly))
	assert.Equal(t, 365.0, ExpectedGapDays(types.FrequencyAnnual))
	assert.Equal(t, 30.0, ExpectedGapDays(types.FrequencyIrregular))
}

func TestCheckContradictions(t *testing.T) {
	ref := newFakeRef()
	ref.put("FX", "2024-01-01", 100)
	ref.put("FX", "2024-01-02", 100)
	records := []types.Record{
		{"date": "2024-01-01", "indicator_code": "FX", "value": 110.0},
		{"date": "2024-01-02", "indicator_code": "FX", "value": 104.0},
		{"date": "2024-01-03", "indicator_code": "FX", "value": 500.0},
		{"date": "2024-01-01", "indicator_code": "FX", "value": 0.0},
		{"date": "garbage", "indicator_code": "FX", "value": 1.0},
	}
	res, err := CheckContradictions(context.Background(), ref, records, UnavailableFailClosed, 2)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.False(t, res.Inconclusive)
	require.Len(t, res.Contradictions, 2)
	c := res.Contradictions[0]
	assert.Equal(t, 0, c.RecordIndex)
	assert.Equal(t, 100.0, c.ExistingValue)
	assert.Equal(t, 110.0, c.SubmittedValue)
	assert.Equal(t, "cby", c.ExistingSource)
	assert.Equal(t, "2024-01-01", c.Period)
	assert.Equal(t, types.ResolutionPending, c.Resolution)
	zero := res.Contradictions[1]
	assert.Equal(t, 3, zero.RecordIndex)
	assert.Equal(t, 0.0, zero.SubmittedValue)
	assert.Equal(t, 4, ref.calls)
}

func TestCheckContradictionsZeroValueIsCompared(t *testing.T) {
	ref := newFakeRef()
	ref.put("fx_rate", "2024-01-01", 500)
	records := []types.Record{{"date": "2024-01-01", "indicator_code": "fx_rate", "value": 0.0}}
	res, err := CheckContradictions(context.Background(), ref, records, UnavailableFailClosed, 1)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Contradictions, 1)
	assert.Equal(t, 500.0, res.Contradictions[0].ExistingValue)
	assert.Equal(t, 1, ref.calls)
}

func TestDisagrees(t *testing.T) {
	assert.False(t, Disagrees(100, 105))
	assert.True(t, Disagrees(100, 105.01))
	assert.True(t, Disagrees(-100, -94))
	assert.True(t, Disagrees(0, 1))
	assert.False(t, Disagrees(0, 0))
}

func TestCheckContradictionsUnavailableModes(t *testing.T) {
	ref := newFakeRef()
	ref.err = reference.ErrUnavailable
	records := []types.Record{{"date": "2024-01-01", "indicator_code": "FX", "value": 1.0}}

	closed, err := CheckContradictions(context.Background(), ref, records, UnavailableFailClosed, 1)
	require.NoError(t, err)
	assert.False(t, closed.Passed)
	assert.True(t, closed.Inconclusive)
	assert.NotEmpty(t, closed.Error)
	assert.Empty(t, closed.Contradictions)

	open, err := CheckContradictions(context.Background(), ref, records, UnavailableFailOpen, 1)
	require.NoError(t, err)
	assert.True(t, open.Passed)
	assert.True(t, open.Inconclusive)

	_, err = CheckContradictions(context.Background(), ref, records, UnavailableAbort, 1)
	require.ErrorIs(t, err, ErrReferenceUnavailable)

	none, err := CheckContradictions(context.Background(), nil, nil, UnavailableAbort, 1)
	require.NoError(t, err)
	assert.True(t, none.Passed)
}

func TestParseUnavailableMode(t *testing.T) {
	mode, err := ParseUnavailableMode("")
	require.NoError(t, err)
	assert.Equal(t, UnavailableFailClosed, mode)
	mode, err = ParseUnavailableMode("abort")
	require.NoError(t, err)
	assert.Equal(t, UnavailableAbort, mode)
	_, err = ParseUnavailableMode("maybe")
	require.Error(t, err)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 100, Score(Tally{}))
	assert.Equal(t, 100-10-2-15-5-3-20, Score(Tally{1, 1, 1, 1, 1, 1}))
	assert.Equal(t, 0, Score(Tally{Contradictions: 6}))
}

func TestScoreNeverIncreases(t *testing.T) {
	bases := []Tally{
		{},
		{Warnings: 3},
		{Errors: 2, Gaps: 1, Outliers: 4},
		{Duplicates: 5, Contradictions: 1},
		{Errors: 9, Contradictions: 4},
	}
	bump := []func(*Tally){
		func(t *Tally) { t.Errors++ },
		func(t *Tally) { t.Warnings++ },
		func(t *Tally) { t.Duplicates++ },
		func(t *Tally) { t.Gaps++ },
		func(t *Tally) { t.Outliers++ },
		func(t *Tally) { t.Contradictions++ },
	}
	for _, base := range bases {
		before := Score(base)
		assert.GreaterOrEqual(t, before, 0)
		assert.LessOrEqual(t, before, 100)
		for i, add := range bump {
			more := base
			add(&more)
			assert.LessOrEqual(t, Score(more), before, "tally %+v bump %d", base, i)
		}
	}
}

func TestPipelineValidate(t *testing.T) {
	ref := newFakeRef()
	ref.put("FX", "2024-01-01", 530)
	p := NewPipeline(ref, Options{}, zap.NewNop())
	assert.Equal(t, UnavailableFailClosed, p.Mode())

	clean := types.SubmissionData{
		Records: []types.Record{
			{"date": "2024-01-01", "indicator_code": "FX", "value": 531.0},
			{"date": "2024-01-02", "indicator_code": "FX", "value": 532.0},
		},
		Metadata: fullMetadata(),
	}
	res, err := p.Validate(context.Background(), clean, fxContract())
	require.NoError(t, err)
	assert.True(t, res.Overall.Passed)
	assert.Equal(t, 100, res.Overall.Score)
	assert.Equal(t, "fx-rates-daily", res.ContractID)
	assert.NotEmpty(t, res.ValidatedAt)

	dirty := types.SubmissionData{
		Records: []types.Record{
			{"date": "2024-01-01", "indicator_code": "FX", "value": 600.0},
			{"date": "2024-01-01", "indicator_code": "FX", "value": 600.0},
		},
	}
	res, err = p.Validate(context.Background(), dirty, fxContract())
	require.NoError(t, err)
	assert.False(t, res.Overall.Passed)
	assert.False(t, res.Schema.Passed)
	assert.False(t, res.Continuity.Passed)
	assert.False(t, res.Contradiction.Passed)
	// two metadata errors, one duplicate, two contradictions
	assert.Equal(t, 100-20-15-40, res.Overall.Score)
}

func TestPipelineAbortAndCancel(t *testing.T) {
	ref := newFakeRef()
	ref.err = errors.New("dial tcp: refused")
	p := NewPipeline(ref, Options{UnavailableMode: UnavailableAbort}, nil)
	data := types.SubmissionData{Records: []types.Record{{"date": "2024-01-01", "indicator_code": "FX", "value": 1.0}}}

	_, err := p.Validate(context.Background(), data, fxContract())
	require.ErrorIs(t, err, ErrReferenceUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Validate(ctx, data, fxContract())
	require.ErrorIs(t, err, context.Canceled)
}

func TestPipelineValidateBatch(t *testing.T) {
	ref := newFakeRef()
	p := NewPipeline(ref, Options{MaxConcurrency: 2}, zap.NewNop())
	items := make([]BatchItem, 5)
	for i := range items {
		items[i] = BatchItem{
			Data:     types.SubmissionData{Records: []types.Record{{"date": "2024-01-01", "indicator_code": "FX", "value": float64(i + 1)}}, Metadata: fullMetadata()},
			Contract: fxContract(),
		}
	}
	items[3].Data.Metadata = nil

	results := p.ValidateBatch(context.Background(), items)
	require.Len(t, results, 5)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i != 3, r.Result.Overall.Passed, "item %d", i)
	}
}
