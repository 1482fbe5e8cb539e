package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyResolutionStreetAccuracyGate(t *testing.T) {
	tests := []struct {
		name       string
		accuracy   float64
		wantStreet string
	}{
		{"accurate fix", 50, "1 Main St"},
		{"inaccurate fix", 150, ""},
		{"at threshold", 100, ""},
		{"unknown accuracy", 0, ""},
		{"negative accuracy", -10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewFormState(DefaultFields)
			state.ApplyResolution(Resolution{Fix: fixWithAccuracy(tt.accuracy), Address: fullAddress()}, 100)

			require.Equal(t, tt.wantStreet, state.Fields[FieldAddress])
			require.Equal(t, "Springfield", state.Fields[FieldLocality])
			require.Equal(t, "IL", state.Fields[FieldAdminArea])
			require.Equal(t, "62701", state.Fields[FieldPostalCode])
			require.Equal(t, "217-555-0100", state.Fields[FieldPhone])
			require.Empty(t, state.Fields[FieldCrossStreet])
		})
	}
}

func TestApplyResolutionPartialAddress(t *testing.T) {
	state := NewFormState(DefaultFields)
	filled := state.ApplyResolution(Resolution{
		Fix:     fixWithAccuracy(10),
		Address: &Address{PostalCode: str("62701"), Locality: str("  ")},
		Region:  &Region{ID: "c-1", Name: "Springfield"},
	}, 100)

	require.Equal(t, []string{FieldPostalCode}, filled)
	require.Empty(t, state.Fields[FieldLocality])
	require.Equal(t, "c-1", state.Region.ID)
}

func TestApplyResolutionNeverOverwritesUserText(t *testing.T) {
	state := NewFormState(DefaultFields)
	require.NoError(t, state.Edit(FieldLocality, "Shelbyville"))
	require.NoError(t, state.Edit(FieldAddress, ""))

	res := Resolution{Fix: fixWithAccuracy(20), Address: fullAddress()}
	state.ApplyResolution(res, 100)
	first := state.Clone()
	state.ApplyResolution(res, 100)

	require.Equal(t, "Shelbyville", state.Fields[FieldLocality])
	require.Empty(t, state.Fields[FieldAddress], "a field the user cleared stays cleared")
	require.Equal(t, first.Fields, state.Fields, "applying the same resolution twice changes nothing")
}

func TestApplyResolutionWithoutAddressKeepsRegion(t *testing.T) {
	state := NewFormState(DefaultFields)
	filled := state.ApplyResolution(Resolution{Fix: fixWithAccuracy(20), Region: &Region{ID: "c-9"}}, 100)

	require.Empty(t, filled)
	require.Equal(t, "c-9", state.Region.ID)
	require.NotNil(t, state.Fix)
}

func TestEditUnknownField(t *testing.T) {
	state := NewFormState(DefaultFields)
	require.ErrorIs(t, state.Edit("website", "example.com"), ErrUnknownField)
	require.NotContains(t, state.Fields, "website")
}

func TestRecordRegionFallback(t *testing.T) {
	state := NewFormState(DefaultFields)
	require.NoError(t, state.Edit(FieldName, "Joe's Diner"))

	fallback := &Region{ID: "home", Name: "Home City"}
	require.Equal(t, "home", state.Record(fallback).RegionID)
	require.Equal(t, "", state.Record(nil).RegionID)

	state.Region = &Region{ID: "resolved"}
	record := state.Record(fallback)
	require.Equal(t, "resolved", record.RegionID)
	require.Equal(t, "Joe's Diner", record.Name)
}

func TestFormStateCloneAndJSON(t *testing.T) {
	state := NewFormState(DefaultFields)
	state.ApplyResolution(Resolution{Fix: fixWithAccuracy(20), Address: fullAddress(), Region: &Region{ID: "c-1"}}, 100)
	require.NoError(t, state.Edit(FieldName, "Cafe"))

	clone := state.Clone()
	clone.Fields[FieldName] = "changed"
	clone.Fix.Accuracy = 999
	require.Equal(t, "Cafe", state.Fields[FieldName])
	require.Equal(t, 20.0, state.Fix.Accuracy)

	payload, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded FormState
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, state.Fields, decoded.Fields)
	require.True(t, decoded.Edited[FieldName])
	require.Equal(t, "Springfield", *decoded.Address.Locality)
}
