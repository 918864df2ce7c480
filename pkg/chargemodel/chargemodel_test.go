package chargemodel_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/chargemodel"
	"github.com/dmitrymomot/billingkit/pkg/validator"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestApply_Standard(t *testing.T) {
	t.Parallel()

	m := chargemodel.Standard{Amount: d("0.25")}

	assertAmount(t, "0", chargemodel.Apply(m, decimal.Zero))
	assertAmount(t, "2.5", chargemodel.Apply(m, d("10")))

	t.Run("is linear in quantity", func(t *testing.T) {
		t.Parallel()
		pairs := [][2]string{{"0", "0"}, {"3", "7.5"}, {"1", "1"}, {"1000000", "0.001"}}
		for _, p := range pairs {
			q1, q2 := d(p[0]), d(p[1])
			sum := chargemodel.Apply(m, q1).Add(chargemodel.Apply(m, q2))
			assertAmount(t, sum.String(), chargemodel.Apply(m, q1.Add(q2)))
		}
	})
}

func TestApply_Graduated(t *testing.T) {
	t.Parallel()

	m := chargemodel.Graduated{Ranges: []chargemodel.GraduatedRange{
		{FromValue: d("0"), ToValue: dp("10"), FlatAmount: d("0"), PerUnitAmount: d("2")},
		{FromValue: d("11"), ToValue: nil, FlatAmount: d("5"), PerUnitAmount: d("1")},
	}}

	tests := []struct {
		quantity string
		want     string
	}{
		{"0", "0"},
		{"5", "10"},
		{"10", "20"},
		{"11", "26"}, // 20 + flat 5 + 1 unit
		{"15", "30"}, // 20 + flat 5 + 5 units
	}
	for _, tt := range tests {
		t.Run("quantity "+tt.quantity, func(t *testing.T) {
			t.Parallel()
			assertAmount(t, tt.want, chargemodel.Apply(m, d(tt.quantity)))
		})
	}

	t.Run("no flat amount for zero quantity", func(t *testing.T) {
		t.Parallel()
		withFlat := chargemodel.Graduated{Ranges: []chargemodel.GraduatedRange{
			{FromValue: d("0"), ToValue: dp("10"), FlatAmount: d("3"), PerUnitAmount: d("1")},
			{FromValue: d("11"), FlatAmount: d("7"), PerUnitAmount: d("0.5")},
		}}
		assertAmount(t, "0", chargemodel.Apply(withFlat, decimal.Zero))
		assertAmount(t, "4", chargemodel.Apply(withFlat, d("1")))
		assertAmount(t, "21", chargemodel.Apply(withFlat, d("12"))) // 3 + 10 + 7 + 2 x 0.5
	})

	t.Run("three tiers", func(t *testing.T) {
		t.Parallel()
		tiers := chargemodel.Graduated{Ranges: []chargemodel.GraduatedRange{
			{FromValue: d("0"), ToValue: dp("10"), PerUnitAmount: d("1")},
			{FromValue: d("11"), ToValue: dp("20"), PerUnitAmount: d("2")},
			{FromValue: d("21"), PerUnitAmount: d("3")},
		}}
		assertAmount(t, "10", chargemodel.Apply(tiers, d("10")))
		assertAmount(t, "30", chargemodel.Apply(tiers, d("20")))
		assertAmount(t, "45", chargemodel.Apply(tiers, d("25"))) // 10 + 20 + 5 x 3
	})
}

// A tier with from_value == to_value bills exactly one unit when reached.
func TestApply_Graduated_SingleUnitTier(t *testing.T) {
	t.Parallel()

	m := chargemodel.Graduated{Ranges: []chargemodel.GraduatedRange{
		{FromValue: d("0"), ToValue: dp("5"), PerUnitAmount: d("1")},
		{FromValue: d("6"), ToValue: dp("6"), PerUnitAmount: d("10")},
		{FromValue: d("7"), PerUnitAmount: d("2")},
	}}

	assertAmount(t, "5", chargemodel.Apply(m, d("5")))
	assertAmount(t, "15", chargemodel.Apply(m, d("6")))
	assertAmount(t, "17", chargemodel.Apply(m, d("7")))
	assertAmount(t, "23", chargemodel.Apply(m, d("10")))
}

func TestApply_Package(t *testing.T) {
	t.Parallel()

	m := chargemodel.Package{Amount: d("100"), FreeUnits: d("10"), PackageSize: d("10")}

	tests := []struct {
		quantity string
		want     string
	}{
		{"0", "0"},
		{"5", "0"},
		{"10", "0"},
		{"11", "100"},
		{"20", "100"},
		{"21", "200"},
		{"35", "300"},
	}
	for _, tt := range tests {
		assertAmount(t, tt.want, chargemodel.Apply(m, d(tt.quantity)))
	}

	t.Run("matches graduated tiers at bundle edges", func(t *testing.T) {
		t.Parallel()
		g := chargemodel.Graduated{Ranges: []chargemodel.GraduatedRange{
			{FromValue: d("0"), ToValue: dp("10")},
			{FromValue: d("11"), ToValue: dp("20"), FlatAmount: d("100")},
			{FromValue: d("21"), ToValue: dp("30"), FlatAmount: d("100")},
			{FromValue: d("31"), ToValue: dp("40"), FlatAmount: d("100")},
		}}
		for q := range 41 {
			quantity := decimal.NewFromInt(int64(q))
			assertAmount(t, chargemodel.Apply(g, quantity).String(), chargemodel.Apply(m, quantity))
		}
	})

	t.Run("fractional quantity starts a bundle", func(t *testing.T) {
		t.Parallel()
		assertAmount(t, "100", chargemodel.Apply(m, d("10.5")))
	})

	t.Run("large quantity", func(t *testing.T) {
		t.Parallel()
		single := chargemodel.Package{Amount: d("0.01"), FreeUnits: decimal.Zero, PackageSize: d("1")}
		assertAmount(t, "10000000", chargemodel.Apply(single, d("1000000000")))
	})

	t.Run("without free units", func(t *testing.T) {
		t.Parallel()
		noFree := chargemodel.Package{Amount: d("5"), FreeUnits: decimal.Zero, PackageSize: d("3")}
		assertAmount(t, "0", chargemodel.Apply(noFree, decimal.Zero))
		assertAmount(t, "5", chargemodel.Apply(noFree, d("1")))
		assertAmount(t, "10", chargemodel.Apply(noFree, d("4")))
	})
}

func TestApply_ZeroQuantityIsFree(t *testing.T) {
	t.Parallel()

	models := []chargemodel.Model{
		chargemodel.Standard{Amount: d("9.99")},
		chargemodel.Graduated{Ranges: []chargemodel.GraduatedRange{
			{FromValue: d("0"), FlatAmount: d("50"), PerUnitAmount: d("1")},
		}},
		chargemodel.Package{Amount: d("100"), FreeUnits: decimal.Zero, PackageSize: d("10")},
	}
	for _, m := range models {
		assertAmount(t, "0", chargemodel.Apply(m, decimal.Zero))
	}
}

func validationCodes(t *testing.T, err error) []string {
	t.Helper()
	require.ErrorIs(t, err, chargemodel.ErrInvalidProperties)
	verrs := validator.ExtractValidationErrors(err)
	require.NotNil(t, verrs)
	return verrs.Codes()
}

func TestParse_Standard(t *testing.T) {
	t.Parallel()

	t.Run("valid string amount", func(t *testing.T) {
		t.Parallel()
		m, err := chargemodel.Parse(chargemodel.KindStandard, json.RawMessage(`{"amount":"12.5"}`))
		require.NoError(t, err)
		require.IsType(t, chargemodel.Standard{}, m)
		assertAmount(t, "12.5", m.(chargemodel.Standard).Amount)
	})

	t.Run("valid numeric amount", func(t *testing.T) {
		t.Parallel()
		m, err := chargemodel.Parse(chargemodel.KindStandard, json.RawMessage(`{"amount":3}`))
		require.NoError(t, err)
		assert.Equal(t, chargemodel.KindStandard, m.Kind())
	})

	invalid := map[string]string{
		"negative":     `{"amount":"-1"}`,
		"zero":         `{"amount":"0"}`,
		"non numeric":  `{"amount":"abc"}`,
		"not a number": `{"amount":"NaN"}`,
		"infinite":     `{"amount":"Infinity"}`,
		"missing":      `{}`,
		"null":         `{"amount":null}`,
	}
	for name, props := range invalid {
		t.Run("rejects "+name+" amount", func(t *testing.T) {
			t.Parallel()
			err := chargemodel.Validate(chargemodel.KindStandard, json.RawMessage(props))
			assert.Equal(t, []string{chargemodel.CodeInvalidAmount}, validationCodes(t, err))
		})
	}
}

func TestParse_Graduated(t *testing.T) {
	t.Parallel()

	t.Run("valid ranges", func(t *testing.T) {
		t.Parallel()
		props := `[
			{"from_value":0,"to_value":10,"flat_amount":"0","per_unit_amount":"2"},
			{"from_value":11,"to_value":null,"flat_amount":"5","per_unit_amount":"1"}
		]`
		m, err := chargemodel.Parse(chargemodel.KindGraduated, json.RawMessage(props))
		require.NoError(t, err)

		g := m.(chargemodel.Graduated)
		require.Len(t, g.Ranges, 2)
		require.NotNil(t, g.Ranges[0].ToValue)
		assert.Nil(t, g.Ranges[1].ToValue)
		assertAmount(t, "30", chargemodel.Apply(m, d("15")))
	})

	t.Run("single-unit range", func(t *testing.T) {
		t.Parallel()
		props := `[
			{"from_value":0,"to_value":5,"flat_amount":"0","per_unit_amount":"1"},
			{"from_value":6,"to_value":6,"flat_amount":"0","per_unit_amount":"10"},
			{"from_value":7,"to_value":null,"flat_amount":"0","per_unit_amount":"2"}
		]`
		m, err := chargemodel.Parse(chargemodel.KindGraduated, json.RawMessage(props))
		require.NoError(t, err)
		assertAmount(t, "15", chargemodel.Apply(m, d("6")))
		assertAmount(t, "17", chargemodel.Apply(m, d("7")))
	})

	t.Run("range ending below its start", func(t *testing.T) {
		t.Parallel()
		props := `[
			{"from_value":0,"to_value":5,"flat_amount":"0","per_unit_amount":"1"},
			{"from_value":6,"to_value":5,"flat_amount":"0","per_unit_amount":"1"},
			{"from_value":6,"to_value":null,"flat_amount":"0","per_unit_amount":"1"}
		]`
		err := chargemodel.Validate(chargemodel.KindGraduated, json.RawMessage(props))
		verrs := validator.ExtractValidationErrors(err)
		require.NotEmpty(t, verrs)
		assert.True(t, verrs.Has("graduated_ranges[1]"))
	})

	t.Run("accepts wrapped ranges", func(t *testing.T) {
		t.Parallel()
		props := `{"graduated_ranges":[{"from_value":0,"to_value":null,"flat_amount":"1","per_unit_amount":"0.5"}]}`
		_, err := chargemodel.Parse(chargemodel.KindGraduated, json.RawMessage(props))
		assert.NoError(t, err)
	})

	t.Run("missing ranges", func(t *testing.T) {
		t.Parallel()
		err := chargemodel.Validate(chargemodel.KindGraduated, json.RawMessage(`[]`))
		assert.Equal(t, []string{chargemodel.CodeMissingGraduatedRange}, validationCodes(t, err))
	})

	t.Run("gap between ranges", func(t *testing.T) {
		t.Parallel()
		props := `[
			{"from_value":0,"to_value":10,"flat_amount":"0","per_unit_amount":"2"},
			{"from_value":12,"to_value":null,"flat_amount":"0","per_unit_amount":"1"}
		]`
		err := chargemodel.Validate(chargemodel.KindGraduated, json.RawMessage(props))
		assert.Equal(t, []string{chargemodel.CodeInvalidGraduatedRanges}, validationCodes(t, err))
	})

	t.Run("open-ended range before the last one", func(t *testing.T) {
		t.Parallel()
		props := `[
			{"from_value":0,"to_value":null,"flat_amount":"0","per_unit_amount":"2"},
			{"from_value":11,"to_value":null,"flat_amount":"0","per_unit_amount":"1"}
		]`
		err := chargemodel.Validate(chargemodel.KindGraduated, json.RawMessage(props))
		verrs := validator.ExtractValidationErrors(err)
		require.Len(t, verrs, 1)
		assert.Equal(t, "graduated_ranges[0]", verrs[0].Field)
	})

	t.Run("reports every invalid amount", func(t *testing.T) {
		t.Parallel()
		props := `[
			{"from_value":0,"to_value":10,"flat_amount":"-1","per_unit_amount":"2"},
			{"from_value":11,"to_value":null,"flat_amount":"0","per_unit_amount":"oops"}
		]`
		err := chargemodel.Validate(chargemodel.KindGraduated, json.RawMessage(props))
		verrs := validator.ExtractValidationErrors(err)
		require.Len(t, verrs, 2)
		assert.True(t, verrs.Has("graduated_ranges[0].flat_amount"))
		assert.True(t, verrs.Has("graduated_ranges[1].per_unit_amount"))
	})
}

func TestParse_Package(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		m, err := chargemodel.Parse(chargemodel.KindPackage, json.RawMessage(`{"amount":100,"free_units":10,"package_size":10}`))
		require.NoError(t, err)
		assertAmount(t, "100", chargemodel.Apply(m, d("11")))
	})

	t.Run("reports every invalid field", func(t *testing.T) {
		t.Parallel()
		err := chargemodel.Validate(chargemodel.KindPackage, json.RawMessage(`{"amount":"-5","free_units":-1,"package_size":0}`))
		verrs := validator.ExtractValidationErrors(err)
		require.Len(t, verrs, 3)
		assert.ElementsMatch(t, []string{"amount", "free_units", "package_size"}, verrs.Fields())
	})

	t.Run("fractional package size", func(t *testing.T) {
		t.Parallel()
		err := chargemodel.Validate(chargemodel.KindPackage, json.RawMessage(`{"amount":"1","free_units":0,"package_size":"2.5"}`))
		assert.Equal(t, []string{chargemodel.CodeInvalidPackageSize}, validationCodes(t, err))
	})
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	_, err := chargemodel.Parse(chargemodel.Kind("volume"), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, chargemodel.ErrUnknownModel)

	_, err = chargemodel.Parse(chargemodel.KindStandard, json.RawMessage(`{not json`))
	assert.Equal(t, []string{chargemodel.CodeInvalidProperties}, validationCodes(t, err))
}
