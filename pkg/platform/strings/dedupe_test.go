package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil input", nil, nil},
		{"empty input", []string{}, []string{}},
		{"trims whitespace", []string{"  a ", "b\t"}, []string{"a", "b"}},
		{"drops empties", []string{"a", "", "   ", "b"}, []string{"a", "b"}},
		{"dedupes preserving order", []string{"b", "a", "b", "a"}, []string{"b", "a"}},
		{"dedupes after trim", []string{" a", "a ", "a"}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}
