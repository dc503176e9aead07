package buildings

import (
	"errors"
	"testing"
)

func TestBuildWhereEmpty(t *testing.T) {
	clause, args, err := buildWhere(nil)
	if err != nil {
		t.Fatalf("buildWhere(nil) error: %v", err)
	}
	if clause != "" || len(args) != 0 {
		t.Errorf("expected empty clause, got %q with %d args", clause, len(args))
	}
}

func TestBuildWhereOperators(t *testing.T) {
	tests := []struct {
		name       string
		filter     Filter
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "eq",
			filter:     Filter{Column: "bouwjaar", Operator: "eq", Value: 1970},
			wantClause: "WHERE bouwjaar = $1",
			wantArgs:   []any{1970},
		},
		{
			name:       "neq",
			filter:     Filter{Column: "residential_type", Operator: "neq", Value: "flat"},
			wantClause: "WHERE residential_type != $1",
			wantArgs:   []any{"flat"},
		},
		{
			name:       "gt",
			filter:     Filter{Column: "area", Operator: "gt", Value: 100.0},
			wantClause: "WHERE area > $1",
			wantArgs:   []any{100.0},
		},
		{
			name:       "lte",
			filter:     Filter{Column: "height", Operator: "lte", Value: 12.5},
			wantClause: "WHERE height <= $1",
			wantArgs:   []any{12.5},
		},
		{
			name:       "between",
			filter:     Filter{Column: "bouwjaar", Operator: "between", Value: []any{1945, 1975}},
			wantClause: "WHERE bouwjaar BETWEEN $1 AND $2",
			wantArgs:   []any{1945, 1975},
		},
		{
			name:       "like wraps value in wildcards",
			filter:     Filter{Column: "postcode", Operator: "like", Value: "5612"},
			wantClause: "WHERE postcode LIKE $1",
			wantArgs:   []any{"%5612%"},
		},
		{
			name:       "ilike",
			filter:     Filter{Column: "gemeentenaam", Operator: "ilike", Value: "eindhoven"},
			wantClause: "WHERE gemeentenaam ILIKE $1",
			wantArgs:   []any{"%eindhoven%"},
		},
		{
			name:       "in",
			filter:     Filter{Column: "woningtype", Operator: "in", Value: []any{"rijwoning", "hoekwoning"}},
			wantClause: "WHERE woningtype IN ($1, $2)",
			wantArgs:   []any{"rijwoning", "hoekwoning"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args, err := buildWhere([]Filter{tt.filter})
			if err != nil {
				t.Fatalf("buildWhere error: %v", err)
			}
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestBuildWhereCombinesConditions(t *testing.T) {
	clause, args, err := buildWhere([]Filter{
		{Column: "bouwjaar", Operator: "gte", Value: 1945},
		{Column: "bouwjaar", Operator: "lt", Value: 1975},
		{Column: "residential_type", Operator: "eq", Value: "rijwoning"},
	})
	if err != nil {
		t.Fatalf("buildWhere error: %v", err)
	}
	want := "WHERE bouwjaar >= $1 AND bouwjaar < $2 AND residential_type = $3"
	if clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d", len(args))
	}
}

func TestBuildWhereRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantErr error
	}{
		{
			name:    "unknown column",
			filter:  Filter{Column: "password", Operator: "eq", Value: "x"},
			wantErr: ErrColumnNotAllowed,
		},
		{
			name:    "injection attempt in column",
			filter:  Filter{Column: "area; DROP TABLE buildings", Operator: "eq", Value: 1},
			wantErr: ErrColumnNotAllowed,
		},
		{
			name:    "unknown operator",
			filter:  Filter{Column: "area", Operator: "regex", Value: ".*"},
			wantErr: ErrBadOperator,
		},
		{
			name:    "between with scalar",
			filter:  Filter{Column: "area", Operator: "between", Value: 5},
			wantErr: ErrBadFilterValue,
		},
		{
			name:    "between with wrong arity",
			filter:  Filter{Column: "area", Operator: "between", Value: []any{1, 2, 3}},
			wantErr: ErrBadFilterValue,
		},
		{
			name:    "in with scalar",
			filter:  Filter{Column: "woningtype", Operator: "in", Value: "flat"},
			wantErr: ErrBadFilterValue,
		},
		{
			name:    "in with empty list",
			filter:  Filter{Column: "woningtype", Operator: "in", Value: []any{}},
			wantErr: ErrBadFilterValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildWhere([]Filter{tt.filter})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildWhereInListCap(t *testing.T) {
	values := make([]any, maxInValues+1)
	for i := range values {
		values[i] = i
	}
	_, _, err := buildWhere([]Filter{{Column: "bouwjaar", Operator: "in", Value: values}})
	if !errors.Is(err, ErrBadFilterValue) {
		t.Errorf("error = %v, want %v", err, ErrBadFilterValue)
	}
}

func TestColumnListsAreConsistent(t *testing.T) {
	for col := range numericColumns {
		if !allowedColumns[col] {
			t.Errorf("numeric column %q missing from allow-list", col)
		}
	}
	for col := range textColumns {
		if !allowedColumns[col] {
			t.Errorf("text column %q missing from allow-list", col)
		}
	}
	if len(FilterableColumns()) != len(allowedColumns) {
		t.Error("FilterableColumns does not cover the allow-list")
	}
}
