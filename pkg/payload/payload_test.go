package payload

import (
	"testing"
	"time"

	"github.com/dukex/devsim/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 4, 5, 6, 7, 8000, time.UTC)

func newBuilder(includeReference bool) *Builder {
	return &Builder{IncludeReference: includeReference, Now: func() time.Time { return fixedNow }}
}

func TestBuild_Continuous(t *testing.T) {
	device := &models.Device{
		Reference: "REF-1",
		Category:  models.CategoryContinuous,
		Dataset:   []models.Row{{"a": 1}, {"a": 2}},
	}

	p := newBuilder(false).Build(device)
	require.NotNil(t, p)
	assert.Equal(t, models.KindBulk, p.Kind)

	rows, ok := p.Body.([]models.Row)
	require.True(t, ok)
	assert.Equal(t, []models.Row{{"a": 1}, {"a": 2}}, rows)
}

func TestBuild_ContinuousWithReference(t *testing.T) {
	device := &models.Device{
		Reference:        "REF-1",
		Category:         models.CategoryContinuous,
		IncludeReference: true,
		Dataset:          []models.Row{{"a": 1}},
	}

	p := newBuilder(false).Build(device)
	require.NotNil(t, p)

	rows := p.Body.([]models.Row)
	assert.Equal(t, "REF-1", rows[0][ReferenceField])
	assert.NotContains(t, device.Dataset[0], ReferenceField, "source rows must not be mutated")
}

func TestBuild_Sequential(t *testing.T) {
	device := &models.Device{
		Reference: "REF-1",
		Category:  models.CategorySequential,
		Cursor:    1,
		Dataset:   []models.Row{{"t": 1}, {"t": 2}, {"t": 3}},
	}

	p := newBuilder(true).Build(device)
	require.NotNil(t, p)
	assert.Equal(t, models.KindIncrement, p.Kind)

	row := p.Body.(models.Row)
	assert.Equal(t, 2, row["t"])
	assert.Equal(t, "2025-03-04T05:06:07.000008Z", row[TimestampField])
	assert.Equal(t, "REF-1", row[ReferenceField])
	assert.Len(t, device.Dataset[1], 1)

	data, err := p.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":2,"timestamp":"2025-03-04T05:06:07.000008Z","device_id":"REF-1"}`, string(data))
}

func TestBuild_Nil(t *testing.T) {
	tests := []struct {
		name   string
		device *models.Device
	}{
		{"nil device", nil},
		{"empty continuous", &models.Device{Category: models.CategoryContinuous}},
		{"empty sequential", &models.Device{Category: models.CategorySequential}},
		{"exhausted sequential", &models.Device{
			Category: models.CategorySequential,
			Cursor:   2,
			Dataset:  []models.Row{{"t": 1}, {"t": 2}},
		}},
		{"unknown category", &models.Device{Category: "OTHER", Dataset: []models.Row{{"t": 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, newBuilder(false).Build(tt.device))
		})
	}
}
