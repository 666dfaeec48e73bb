package types

import (
	"testing"

	"github.com/charlie0129/esoh/pkg/parameters"
)

func TestListParameterSets(t *testing.T) {
	builtin, err := parameters.Get(parameters.Mohtat2020)
	if err != nil {
		t.Fatal(err)
	}

	shadow := builtin
	shadow.Description = "tuned"
	extra := builtin
	extra.Name = "aged"

	tests := []struct {
		name  string
		cells []parameters.Set
		want  []ParameterSetInfo
	}{
		{
			name: "built-in only",
			want: []ParameterSetInfo{{Name: parameters.Mohtat2020, Description: builtin.Description, Builtin: true}},
		},
		{
			name:  "user cell shadows built-in",
			cells: []parameters.Set{shadow},
			want:  []ParameterSetInfo{{Name: parameters.Mohtat2020, Description: "tuned"}},
		},
		{
			name:  "sorted by name",
			cells: []parameters.Set{extra},
			want: []ParameterSetInfo{
				{Name: parameters.Mohtat2020, Description: builtin.Description, Builtin: true},
				{Name: "aged", Description: builtin.Description},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ListParameterSets(tt.cells)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sets, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("set %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
