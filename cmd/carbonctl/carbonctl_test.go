package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"example.com/carbonledger/internal/emissions"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFactorsJSONPreservesDeclaredOrder(t *testing.T) {
	out, err := run(t, "factors", "--format", "json")
	require.NoError(t, err)

	var factors []emissions.Factor
	require.NoError(t, json.Unmarshal([]byte(out), &factors))
	assert.Equal(t, emissions.Factors(), factors)
	assert.Equal(t, "car_gasoline", factors[0].Type)
}

func TestFactorsYAMLFilteredByCategory(t *testing.T) {
	out, err := run(t, "factors", "--format", "yaml", "--category", "waste")
	require.NoError(t, err)

	var factors []emissions.Factor
	require.NoError(t, yaml.Unmarshal([]byte(out), &factors))
	require.Len(t, factors, 3)
	assert.Equal(t, "general", factors[0].Type)
	assert.Equal(t, 0.5, factors[0].KgCO2PerUnit)
}

func TestFactorsTable(t *testing.T) {
	out, err := run(t, "factors", "--category", "energy")
	require.NoError(t, err)
	assert.Contains(t, out, "KG CO2/UNIT")
	assert.Contains(t, out, "natural_gas")
	assert.Contains(t, out, "kWh")
	assert.NotContains(t, out, "beef")
}

func TestFactorsRejectsBadInput(t *testing.T) {
	_, err := run(t, "factors", "--format", "xml")
	require.ErrorContains(t, err, `unknown format "xml"`)

	_, err = run(t, "factors", "--category", "pets")
	require.ErrorContains(t, err, `unknown category "pets"`)
}

func TestEstimateExactFactor(t *testing.T) {
	out, err := run(t, "estimate", "--category", "food", "--type", "beef", "--quantity", "2", "--json")
	require.NoError(t, err)

	var got estimate
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, emissions.ResolutionExact, got.Resolution)
	assert.Equal(t, "54", string(got.Emission))
	assert.Equal(t, "kg", got.Unit)
	assert.Empty(t, got.AppliedAs)
}

func TestEstimateFallbackAndNone(t *testing.T) {
	out, err := run(t, "estimate", "--category", "energy", "--type", "solar", "--quantity", "10")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "using electricity")
	assert.Equal(t, "10 kWh energy -> 5 kg CO2 (fallback)", lines[1])

	out, err = run(t, "estimate", "--category", "products", "--quantity", "3", "--json")
	require.NoError(t, err)
	var got estimate
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, emissions.ResolutionNone, got.Resolution)
	assert.Equal(t, "0", string(got.Emission))
}

func TestEstimateValidation(t *testing.T) {
	cases := map[string][]string{
		"unknown category":  {"estimate", "--category", "pets", "--quantity", "1"},
		"bad quantity":      {"estimate", "--category", "food", "--quantity", "lots"},
		"negative quantity": {"estimate", "--category", "food", "--quantity", "-1"},
		"missing quantity":  {"estimate", "--category", "food"},
		"huge quantity":     {"estimate", "--category", "food", "--quantity", "1e400"},
		"huge emission":     {"estimate", "--category", "food", "--type", "beef", "--quantity", "1e308"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, args...)
			require.Error(t, err)
		})
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	_, err := run(t, "migrate")
	require.ErrorContains(t, err, "POSTGRES_URL is required")
}
