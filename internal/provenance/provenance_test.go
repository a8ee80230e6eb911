package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource(t *testing.T) {
	assert.Equal(t, "toolkit:steady-state", Source("steady-state"))
	assert.True(t, IsToolkit(Source("spike")))
}

func TestIsToolkit(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"toolkit:growth", true},
		{"toolkit:", true},
		{"Toolkit:growth", false},
		{"import:toolkit:growth", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, IsToolkit(tt.source))
		})
	}
}
