package buildings

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Validation errors for user-supplied filter input. Handlers map these to
// HTTP 400 responses.
var (
	ErrColumnNotAllowed = errors.New("column is not allowed")
	ErrBadOperator      = errors.New("unsupported filter operator")
	ErrBadFilterValue   = errors.New("invalid filter value")
)

// maxInValues caps the list size of an "in" filter so a single request
// cannot explode the parameter count.
const maxInValues = 100

// allowedColumns is the whitelist of filterable and sortable columns.
// Every column name that reaches SQL text must pass through this set;
// values are always bound as parameters.
var allowedColumns = map[string]bool{
	"pand_id":              true,
	"area":                 true,
	"height":               true,
	"gem_bouwlagen":        true,
	"residential_type":     true,
	"bouwjaar":             true,
	"postcode":             true,
	"average_wwr":          true,
	"perimeter":            true,
	"volume":               true,
	"footprint_area":       true,
	"n_units":              true,
	"label_energy_index":   true,
	"building_function":    true,
	"building_type":        true,
	"age_range":            true,
	"non_residential_type": true,
	"woningtype":           true,
	"gemeentenaam":         true,
	"provincienaam":        true,
	"wijknaam":             true,
}

var numericColumns = map[string]bool{
	"area":               true,
	"height":             true,
	"gem_bouwlagen":      true,
	"bouwjaar":           true,
	"average_wwr":        true,
	"perimeter":          true,
	"volume":             true,
	"footprint_area":     true,
	"n_units":            true,
	"label_energy_index": true,
}

var textColumns = map[string]bool{
	"pand_id":              true,
	"residential_type":     true,
	"postcode":             true,
	"building_function":    true,
	"building_type":        true,
	"age_range":            true,
	"non_residential_type": true,
	"woningtype":           true,
	"gemeentenaam":         true,
	"provincienaam":        true,
	"wijknaam":             true,
}

// distinctValueColumns are the low-cardinality columns exposed for
// dropdown population.
var distinctValueColumns = map[string]bool{
	"residential_type":     true,
	"building_function":    true,
	"building_type":        true,
	"age_range":            true,
	"non_residential_type": true,
	"woningtype":           true,
	"gemeentenaam":         true,
	"provincienaam":        true,
	"bouwjaar":             true,
	"gem_bouwlagen":        true,
}

// Filter is one comparison condition on an allow-listed column.
// For "between" the value is a two-element [min, max] list; for "in" it is
// a non-empty list of candidates.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// buildWhere converts filters into a WHERE clause with positional
// placeholders and the matching argument list. An empty filter set yields
// an empty clause.
func buildWhere(filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	var conditions []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, f := range filters {
		if !allowedColumns[f.Column] {
			return "", nil, fmt.Errorf("%w: %q", ErrColumnNotAllowed, f.Column)
		}

		switch f.Operator {
		case "eq":
			conditions = append(conditions, fmt.Sprintf("%s = %s", f.Column, next(f.Value)))
		case "neq":
			conditions = append(conditions, fmt.Sprintf("%s != %s", f.Column, next(f.Value)))
		case "gt":
			conditions = append(conditions, fmt.Sprintf("%s > %s", f.Column, next(f.Value)))
		case "lt":
			conditions = append(conditions, fmt.Sprintf("%s < %s", f.Column, next(f.Value)))
		case "gte":
			conditions = append(conditions, fmt.Sprintf("%s >= %s", f.Column, next(f.Value)))
		case "lte":
			conditions = append(conditions, fmt.Sprintf("%s <= %s", f.Column, next(f.Value)))
		case "between":
			pair, ok := f.Value.([]any)
			if !ok || len(pair) != 2 {
				return "", nil, fmt.Errorf("%w: 'between' requires [min, max]", ErrBadFilterValue)
			}
			conditions = append(conditions,
				fmt.Sprintf("%s BETWEEN %s AND %s", f.Column, next(pair[0]), next(pair[1])))
		case "like":
			conditions = append(conditions,
				fmt.Sprintf("%s LIKE %s", f.Column, next(fmt.Sprintf("%%%v%%", f.Value))))
		case "ilike":
			conditions = append(conditions,
				fmt.Sprintf("%s ILIKE %s", f.Column, next(fmt.Sprintf("%%%v%%", f.Value))))
		case "in":
			list, ok := f.Value.([]any)
			if !ok || len(list) == 0 {
				return "", nil, fmt.Errorf("%w: 'in' requires a non-empty list", ErrBadFilterValue)
			}
			if len(list) > maxInValues {
				return "", nil, fmt.Errorf("%w: 'in' accepts at most %d values", ErrBadFilterValue, maxInValues)
			}
			placeholders := make([]string, len(list))
			for i, v := range list {
				placeholders[i] = next(v)
			}
			conditions = append(conditions,
				fmt.Sprintf("%s IN (%s)", f.Column, strings.Join(placeholders, ", ")))
		default:
			return "", nil, fmt.Errorf("%w: %q", ErrBadOperator, f.Operator)
		}
	}

	return "WHERE " + strings.Join(conditions, " AND "), args, nil
}

// FilterableColumns returns the allow-listed columns in sorted order.
func FilterableColumns() []string {
	return slices.Sorted(maps.Keys(allowedColumns))
}

// NumericColumns returns the numeric columns in sorted order.
func NumericColumns() []string {
	return slices.Sorted(maps.Keys(numericColumns))
}

// TextColumns returns the text columns in sorted order.
func TextColumns() []string {
	return slices.Sorted(maps.Keys(textColumns))
}

// DistinctValueColumns returns the columns available for distinct value
// queries in sorted order.
func DistinctValueColumns() []string {
	return slices.Sorted(maps.Keys(distinctValueColumns))
}
