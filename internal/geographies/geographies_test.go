package geographies

import (
	"testing"

	"github.com/petitionwatch/backend/internal/types"
)

func TestName(t *testing.T) {
	tests := []struct {
		geography types.Geography
		code      string
		want      string
	}{
		{types.GeographyCountry, "GB", "United Kingdom"},
		{types.GeographyRegion, "H", "London"},
		{types.GeographyCountry, "ZZ", "ZZ"},
		{types.GeographyConstituency, "E14000539", "E14000539"},
	}
	for _, tt := range tests {
		if got := Name(tt.geography, tt.code); got != tt.want {
			t.Fatalf("Name(%s, %q) = %q, want %q", tt.geography, tt.code, got, tt.want)
		}
	}
}

func TestKnown(t *testing.T) {
	if !Known(types.GeographyCountry, "FR") {
		t.Fatalf("FR should be seeded")
	}
	if Known(types.GeographyConstituency, "E14000539") {
		t.Fatalf("constituencies are never seeded")
	}
}
