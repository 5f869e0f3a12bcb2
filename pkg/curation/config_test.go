package curation

import "testing"

func validConfig() Config {
	return Config{Assets: []AssetConfig{
		{
			Name: "date_of_birth",
			Kind: AssetKindDemographic,
			Sources: []SourceConfig{
				{Name: "primary_care", Table: "pc_patients", Priority: 1, Quality: QualityHigh, Coverage: 0.9, Columns: map[string]string{"patient_id": "id", "date_of_birth": "dob"}},
			},
		},
	}}
}

func TestConfigValidateAcceptsValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateRejectsBadPriority(t *testing.T) {
	cfg := validConfig()
	cfg.Assets[0].Sources[0].Priority = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive priority")
	}
}

func TestConfigValidateRejectsMissingPatientID(t *testing.T) {
	cfg := validConfig()
	cfg.Assets[0].Sources[0].Columns = map[string]string{"date_of_birth": "dob"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing patient_id mapping")
	}
}

func TestConfigValidateRejectsBadQuality(t *testing.T) {
	cfg := validConfig()
	cfg.Assets[0].Sources[0].Quality = "excellent"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown quality")
	}
}

func TestConfigValidateRejectsBadCoverage(t *testing.T) {
	cfg := validConfig()
	cfg.Assets[0].Sources[0].Coverage = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for coverage outside [0,1]")
	}
}

func TestConfigAssetUnknownName(t *testing.T) {
	if _, err := validConfig().Asset("blood_pressure"); err == nil {
		t.Fatal("expected error for unknown asset")
	}
}

func TestApplyPreferredSource(t *testing.T) {
	asset := AssetConfig{
		Name: "sex",
		Kind: AssetKindDemographic,
		Sources: []SourceConfig{
			{Name: "primary_care", Priority: 1},
			{Name: "hospital", Priority: 2},
		},
	}

	overridden, err := ApplyPreferredSource(asset, "hospital")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, src := range overridden.Sources {
		if src.Name == "hospital" && src.Priority != 0 {
			t.Fatalf("preferred source priority is %d, want 0", src.Priority)
		}
	}
	// Original config must be untouched.
	if asset.Sources[1].Priority != 2 {
		t.Fatal("ApplyPreferredSource mutated the input asset")
	}

	if _, err := ApplyPreferredSource(asset, "wearables"); err == nil {
		t.Fatal("expected error for unknown preferred source")
	}
}
