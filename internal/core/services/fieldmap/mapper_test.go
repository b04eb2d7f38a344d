package fieldmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/rowloader/internal/core/domain"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

func productEntity() domain.Document {
	return domain.Document{
		"sku": "A1",
		"variants": []interface{}{
			map[string]interface{}{"sku": "A1", "color": "red"},
		},
	}
}

func TestApply_PassThroughAndRename(t *testing.T) {
	m, err := Compile(map[string]string{
		"name":  "title",
		"price": "pricing.amount",
	}, nil, "")
	require.NoError(t, err)

	mapped, err := m.Apply(map[string]string{"sku": "A1", "name": "Widget", "price": "10"}, nil)

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"sku":            "A1",
		"title":          "Widget",
		"pricing.amount": "10",
	}, mapped.Data)
	assert.Equal(t, "pricing.amount", mapped.Keys["price"])
}

func TestApply_PlaceholderResolution(t *testing.T) {
	m, err := Compile(
		map[string]string{"color": "variants._.color"},
		map[string][]string{"variants": {"sku"}},
		"_",
	)
	require.NoError(t, err)

	tests := []struct {
		name     string
		sku      string
		expected string
	}{
		{"existing element is overwritten", "A1", "variants.0.color"},
		{"unknown element is appended", "A9", "variants.1.color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped, err := m.Apply(map[string]string{"sku": tt.sku, "color": "blue"}, productEntity())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mapped.Keys["color"])
			assert.Equal(t, "blue", mapped.Data[tt.expected])
		})
	}
}

func TestApply_PlaceholderWithoutEntity(t *testing.T) {
	m, err := Compile(
		map[string]string{"color": "variants._.color"},
		map[string][]string{"variants": {"sku"}},
		"",
	)
	require.NoError(t, err)

	mapped, err := m.Apply(map[string]string{"sku": "A1", "color": "blue"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "variants.0.color", mapped.Keys["color"])
}

func TestApply_MultiFieldCorrelationRequiresAllFields(t *testing.T) {
	entity := domain.Document{
		"variants": []interface{}{
			map[string]interface{}{"sku": "A1", "size": "S", "stock": 3},
			map[string]interface{}{"sku": "A1", "size": "M", "stock": 5},
		},
	}
	m, err := Compile(
		map[string]string{"stock": "variants._.stock"},
		map[string][]string{"variants": {"sku", "size"}},
		"",
	)
	require.NoError(t, err)

	mapped, err := m.Apply(map[string]string{"sku": "A1", "size": "M", "stock": "7"}, entity)
	require.NoError(t, err)
	assert.Equal(t, "variants.1.stock", mapped.Keys["stock"])

	mapped, err = m.Apply(map[string]string{"sku": "A1", "size": "L", "stock": "7"}, entity)
	require.NoError(t, err)
	assert.Equal(t, "variants.2.stock", mapped.Keys["stock"])
}

func TestApply_CorrelationThroughMappedColumn(t *testing.T) {
	m, err := Compile(
		map[string]string{
			"variant_sku":   "variants._.sku",
			"variant_color": "variants._.color",
		},
		map[string][]string{"variants": {"sku"}},
		"",
	)
	require.NoError(t, err)

	mapped, err := m.Apply(map[string]string{"variant_sku": "A1", "variant_color": "green"}, productEntity())

	require.NoError(t, err)
	assert.Equal(t, "variants.0.sku", mapped.Keys["variant_sku"])
	assert.Equal(t, "variants.0.color", mapped.Keys["variant_color"])
}

func TestApply_NumericCorrelationValue(t *testing.T) {
	entity := domain.Document{
		"lines": []interface{}{
			map[string]interface{}{"no": float64(1)},
			map[string]interface{}{"no": float64(2)},
		},
	}
	m, err := Compile(
		map[string]string{"qty": "lines._.qty"},
		map[string][]string{"lines": {"no"}},
		"",
	)
	require.NoError(t, err)

	mapped, err := m.Apply(map[string]string{"no": "2", "qty": "9"}, entity)

	require.NoError(t, err)
	assert.Equal(t, "lines.1.qty", mapped.Keys["qty"])
}

func TestApply_MissingCorrelationData(t *testing.T) {
	m, err := Compile(
		map[string]string{"color": "variants._.color"},
		map[string][]string{"variants": {"sku"}},
		"",
	)
	require.NoError(t, err)

	_, err = m.Apply(map[string]string{"color": "blue"}, productEntity())

	require.Error(t, err)
	assert.Equal(t, "Data not present for sku", err.Error())
	var missing *MissingDataError
	assert.ErrorAs(t, err, &missing)
}

func TestApply_CustomPlaceholder(t *testing.T) {
	m, err := Compile(
		map[string]string{"color": "variants.*.color"},
		map[string][]string{"variants": {"sku"}},
		"*",
	)
	require.NoError(t, err)
	assert.Equal(t, "*", m.Placeholder())

	mapped, err := m.Apply(map[string]string{"sku": "A9", "color": "blue"}, productEntity())

	require.NoError(t, err)
	assert.Equal(t, "variants.1.color", mapped.Keys["color"])
}

func TestCompile_UndeclaredPlaceholder(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"no correlation for collection", map[string]string{"color": "variants._.color"}},
		{"placeholder as first segment", map[string]string{"color": "_.color"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.fields, map[string][]string{"options": {"sku"}}, "_")
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnderscorePointer))
		})
	}
}

func TestMapped_RoundTrip(t *testing.T) {
	m, err := Compile(
		map[string]string{
			"name":  "title",
			"color": "variants._.color",
		},
		map[string][]string{"variants": {"sku"}},
		"",
	)
	require.NoError(t, err)

	row := map[string]string{"sku": "A1", "name": "Widget", "color": "blue"}
	mapped, err := m.Apply(row, productEntity())
	require.NoError(t, err)

	reverse := mapped.Reverse()
	for key := range mapped.Data {
		_, ok := row[reverse[key]]
		assert.True(t, ok, "mapped key %s must reverse to an original column", key)
	}
	assert.Equal(t, row, mapped.Restore())
}

func TestMap_Target(t *testing.T) {
	m, err := Compile(map[string]string{"name": "title"}, nil, "")
	require.NoError(t, err)

	path, ok := m.Target("name")
	assert.True(t, ok)
	assert.Equal(t, "title", path)

	_, ok = m.Target("sku")
	assert.False(t, ok)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "10", Stringify(float64(10)))
	assert.Equal(t, "12.5", Stringify(12.5))
	assert.Equal(t, "3", Stringify(3))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "A1", Stringify("A1"))
}
