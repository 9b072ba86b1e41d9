package store

import (
	"reflect"
	"testing"
)

func TestBuildWhere(t *testing.T) {
	tests := []struct {
		name       string
		conds      map[string]any
		overrides  map[string]string
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "empty map",
			conds:      map[string]any{},
			wantClause: "1=1",
		},
		{
			name:       "all nil values",
			conds:      map[string]any{"account": nil, "category": nil},
			wantClause: "1=1",
		},
		{
			name:       "single condition",
			conds:      map[string]any{"account": "DBS Savings"},
			wantClause: "account = ?",
			wantArgs:   []any{"DBS Savings"},
		},
		{
			name:       "multiple conditions sorted by field",
			conds:      map[string]any{"category": "food", "account": "cash"},
			wantClause: "account = ? AND category = ?",
			wantArgs:   []any{"cash", "food"},
		},
		{
			name:       "nil values skipped",
			conds:      map[string]any{"account": "cash", "category": nil},
			wantClause: "account = ?",
			wantArgs:   []any{"cash"},
		},
		{
			name:  "override fragment",
			conds: map[string]any{"start_date": "2026-01-01"},
			overrides: map[string]string{
				"start_date": "t.transaction_date >= ?",
			},
			wantClause: "t.transaction_date >= ?",
			wantArgs:   []any{"2026-01-01"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := BuildWhere(tt.conds, tt.overrides)
			if clause != tt.wantClause {
				t.Fatalf("clause = %q, want %q", clause, tt.wantClause)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestBuildUpdate(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		exclude    []string
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "all nil yields empty clause",
			data:       map[string]any{"amount": nil, "notes": nil},
			wantClause: "",
		},
		{
			name:       "id always excluded",
			data:       map[string]any{"id": "evil", "notes": "hello"},
			wantClause: "notes = ?",
			wantArgs:   []any{"hello"},
		},
		{
			name:       "extra excluded fields",
			data:       map[string]any{"author": "x", "notes": "y"},
			exclude:    []string{"author"},
			wantClause: "notes = ?",
			wantArgs:   []any{"y"},
		},
		{
			name:       "sorted assignments",
			data:       map[string]any{"currency": "SGD", "account": "cash"},
			wantClause: "account = ?, currency = ?",
			wantArgs:   []any{"cash", "SGD"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := BuildUpdate(tt.data, tt.exclude...)
			if clause != tt.wantClause {
				t.Fatalf("clause = %q, want %q", clause, tt.wantClause)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		in    string
		start int
		want  string
	}{
		{"account = ?", 1, "account = $1"},
		{"a = ? AND b = ?", 1, "a = $1 AND b = $2"},
		{"a = ? AND b = ?", 3, "a = $3 AND b = $4"},
		{"no markers", 1, "no markers"},
	}
	for _, tt := range tests {
		if got := Rebind(tt.in, tt.start); got != tt.want {
			t.Fatalf("Rebind(%q, %d) = %q, want %q", tt.in, tt.start, got, tt.want)
		}
	}
}
