package hotspot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkilian/hotspot/internal/combos"
	hserrors "github.com/arkilian/hotspot/internal/errors"
)

func TestEnrich_PrefixesFixedDimensions(t *testing.T) {
	cs := []combos.Combination{{"day"}, {"smoker"}, {"day", "smoker"}}

	got, err := Enrich(cs, []string{"region"}, []string{"year", "month"}, false)
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.Equal(t, []string{"region", "year", "month", "day"}, got[0].Columns())
	require.Equal(t, []string{"region", "year", "month", "day", "smoker"}, got[2].Columns())
	require.Equal(t, []string{"region", "year", "month"}, got[2].Fixed())
	require.Equal(t, 2, got[2].Depth())
}

func TestEnrich_OverallComesFirst(t *testing.T) {
	cs := []combos.Combination{{"day"}}

	got, err := Enrich(cs, nil, []string{"week"}, true)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.True(t, got[0].IsOverall())
	require.Equal(t, 0, got[0].Depth())
	require.Equal(t, []string{"week", OverallColumn}, got[0].Columns())
	require.False(t, got[1].IsOverall())
}

func TestEnrich_NoFixedDimensions(t *testing.T) {
	got, err := Enrich([]combos.Combination{{"a", "b"}}, nil, nil, false)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got[0].Columns())
	require.Equal(t, "a,b", got[0].String())
}

func TestEnrich_Errors(t *testing.T) {
	tests := []struct {
		name       string
		cs         []combos.Combination
		groupedBy  []string
		timePeriod []string
		code       string
	}{
		{"target also grouped-by", []combos.Combination{{"day"}}, []string{"day"}, nil, hserrors.CodeOverlappingDimensions},
		{"target also time-period", []combos.Combination{{"week"}}, nil, []string{"week"}, hserrors.CodeOverlappingDimensions},
		{"grouped-by also time-period", []combos.Combination{{"day"}}, []string{"week"}, []string{"week"}, hserrors.CodeOverlappingDimensions},
		{"duplicate grouped-by", []combos.Combination{{"day"}}, []string{"r", "r"}, nil, hserrors.CodeDuplicateColumns},
		{"reserved name", []combos.Combination{{OverallColumn}}, nil, nil, hserrors.CodeInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Enrich(tt.cs, tt.groupedBy, tt.timePeriod, false)
			require.Error(t, err)
			require.True(t, hserrors.IsConfig(err))
			require.Equal(t, tt.code, hserrors.GetCode(err))
		})
	}
}

func TestEnrich_OverlapMessageNamesColumns(t *testing.T) {
	_, err := Enrich([]combos.Combination{{"day"}}, []string{"day"}, nil, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "day (target and grouped-by)")
}
