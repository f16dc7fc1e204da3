package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortean/domain/anomaly"
)

func TestRecordFilter_Empty(t *testing.T) {
	filter, err := recordFilter("", "", "")
	require.NoError(t, err)
	assert.Nil(t, filter.Type)
	assert.Nil(t, filter.DateRange)
	assert.Nil(t, filter.GeoBounds)
}

func TestRecordFilter_Type(t *testing.T) {
	filter, err := recordFilter("ufo", "", "")
	require.NoError(t, err)
	require.NotNil(t, filter.Type)
	assert.Equal(t, anomaly.TypeUFO, *filter.Type)
}

func TestRecordFilter_UnknownTypeFails(t *testing.T) {
	_, err := recordFilter("poltergeist", "", "")
	assert.Error(t, err)
}

func TestRecordFilter_ToCoversWholeDay(t *testing.T) {
	filter, err := recordFilter("", "2024-01-01", "2024-03-31")
	require.NoError(t, err)
	require.NotNil(t, filter.DateRange)

	assert.True(t, filter.DateRange.Contains(time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, filter.DateRange.Contains(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, filter.DateRange.Contains(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestRecordFilter_FromOnlyExtendsToNow(t *testing.T) {
	filter, err := recordFilter("", "2024-01-01", "")
	require.NoError(t, err)
	require.NotNil(t, filter.DateRange)

	assert.True(t, filter.DateRange.Contains(time.Now().UTC().Add(-time.Hour)))
}

func TestRecordFilter_BadDatesFail(t *testing.T) {
	_, err := recordFilter("", "January 1st", "")
	assert.Error(t, err)

	_, err = recordFilter("", "", "2024-13-01")
	assert.Error(t, err)
}
