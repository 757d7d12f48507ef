package classifier

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestClassify_Bands(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  Band
	}{
		{"too low", 35.0, BandTooLow},
		{"just below normal", 36.39, BandTooLow},
		{"normal lower bound", 36.4, BandNormal},
		{"normal", 36.9, BandNormal},
		{"normal upper bound", 37.5, BandNormal},
		{"mild fever lower bound", 37.6, BandMildFever},
		{"mild fever", 38.5, BandMildFever},
		{"just below moderate", 38.999, BandMildFever},
		{"moderate fever lower bound", 39.0, BandModerateFever},
		{"just below high", 39.999, BandModerateFever},
		{"high fever lower bound", 40.0, BandHighFever},
		{"high fever upper bound", 40.6, BandHighFever},
		{"very high fever", 40.60001, BandVeryHighFever},
		{"extreme", 42.0, BandVeryHighFever},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(floatPtr(tt.value)))
		})
	}
}

func TestClassify_Undetermined(t *testing.T) {
	assert.Equal(t, BandUndetermined, Classify(nil))
	assert.Equal(t, BandUndetermined, Classify(floatPtr(math.NaN())))
}

// 分级必须无缝覆盖整条数轴：任意读数恰好落入一个确定分级
func TestClassify_Total(t *testing.T) {
	for v := 30.0; v <= 45.0; v += 0.01 {
		band := Classify(floatPtr(v))
		assert.NotEqual(t, BandUndetermined, band, "value %.2f must map to a determinate band", v)
	}
}

func TestBand_JSONRoundTrip(t *testing.T) {
	bands := []Band{
		BandUndetermined,
		BandTooLow,
		BandNormal,
		BandMildFever,
		BandModerateFever,
		BandHighFever,
		BandVeryHighFever,
	}

	for _, band := range bands {
		data, err := json.Marshal(band)
		require.NoError(t, err)

		var parsed Band
		require.NoError(t, json.Unmarshal(data, &parsed))
		assert.Equal(t, band, parsed)
	}
}

func TestParseBand_Unknown(t *testing.T) {
	assert.Equal(t, BandUndetermined, ParseBand("Demam Tinggi"))
	assert.Equal(t, BandUndetermined, ParseBand(""))
}
