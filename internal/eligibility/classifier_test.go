package eligibility

import "testing"

var (
	testEligible = []string{"RS", "SC", "PR", "SP", "RJ", "MG", "ES", "GO", "MT", "MS", "DF"}
	testInterest = []string{"BA", "PE", "CE", "RN", "PB", "AL", "SE", "PI", "MA", "AP", "AM", "RR", "AC", "TO"}
)

func TestClassify(t *testing.T) {
	c := New(testEligible, testInterest)

	tests := []struct {
		region string
		want   Outcome
	}{
		{"RS", Eligible},
		{"SP", Eligible},
		{"DF", Eligible},
		{"BA", Interest},
		{"TO", Interest},
		{"PA", Ineligible}, // valid UF, in neither set
		{"RO", Ineligible},
		{"XX", Ineligible},
		{"", Ineligible},
	}

	for _, tc := range tests {
		if got := c.Classify(tc.region); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.region, got, tc.want)
		}
	}
}

func TestClassifyNormalizesInput(t *testing.T) {
	c := New(testEligible, testInterest)

	if got := c.Classify("rs"); got != Eligible {
		t.Errorf("Classify(\"rs\") = %q, want eligible", got)
	}
	if got := c.Classify("  ba "); got != Interest {
		t.Errorf("Classify(\"  ba \") = %q, want interest", got)
	}
}

func TestEligibleWinsWhenSetsOverlap(t *testing.T) {
	c := New([]string{"SP"}, []string{"SP"})
	if got := c.Classify("SP"); got != Eligible {
		t.Errorf("Classify(\"SP\") = %q, want eligible", got)
	}
}

func TestRegionName(t *testing.T) {
	if got := RegionName("RS"); got != "Rio Grande do Sul" {
		t.Errorf("RegionName(\"RS\") = %q", got)
	}
	if got := RegionName("rs"); got != "Rio Grande do Sul" {
		t.Errorf("RegionName(\"rs\") = %q", got)
	}
	if got := RegionName("ZZ"); got != "ZZ" {
		t.Errorf("RegionName(\"ZZ\") = %q, want code passthrough", got)
	}
}

func TestIsKnownRegion(t *testing.T) {
	if !IsKnownRegion("SP") {
		t.Error("SP should be a known region")
	}
	if IsKnownRegion("XX") {
		t.Error("XX should not be a known region")
	}
}
