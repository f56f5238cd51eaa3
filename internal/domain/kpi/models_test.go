package kpi

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestKPIValidate(t *testing.T) {
	valid := KPI{
		Name:       "Calls",
		SourceType: SourceManual,
		Period:     PeriodWeekly,
	}
	require.NoError(t, valid.Validate())

	noName := valid
	noName.Name = ""
	require.ErrorIs(t, noName.Validate(), ErrValidation)

	badSource := valid
	badSource.SourceType = "external"
	require.ErrorIs(t, badSource.Validate(), ErrValidation)

	badPeriod := valid
	badPeriod.Period = "fortnightly"
	require.ErrorIs(t, badPeriod.Validate(), ErrValidation)

	aggregateWithoutQuery := valid
	aggregateWithoutQuery.SourceType = SourceAggregate
	require.ErrorIs(t, aggregateWithoutQuery.Validate(), ErrValidation)

	minAboveMax := valid
	minAboveMax.MinimumValue = decPtr(10)
	minAboveMax.MaximumValue = decPtr(5)
	require.ErrorIs(t, minAboveMax.Validate(), ErrValidation)
}

func TestEntryMetadataRoundTrip(t *testing.T) {
	manual := EntryMetadata{Manual: &ManualAggregationMeta{
		Source:       MetaSourceReports,
		Method:       MethodSum,
		ReportsCount: 2,
		ReportedBy:   []string{"a@example.com"},
	}}
	data, err := json.Marshal(manual)
	require.NoError(t, err)

	var decoded EntryMetadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Manual)
	require.Nil(t, decoded.System)
	require.Equal(t, MethodSum, decoded.Manual.Method)

	system := EntryMetadata{System: &SystemAggregationMeta{
		Source:         MetaSourceSystem,
		AggregateQuery: "SELECT COUNT(1) FROM orders",
	}}
	data, err = json.Marshal(system)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.System)

	var empty EntryMetadata
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))

	require.Error(t, json.Unmarshal([]byte(`{"source":"mystery"}`), &decoded))
}
