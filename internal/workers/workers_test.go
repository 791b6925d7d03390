package workers

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	t.Setenv(EnvOverride, "")
	procs := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		want       int
	}{
		{"one per cpu", 1.0, 0, procs},
		{"capped", 1.0, 1, 1},
		{"double", 2.0, 0, procs * 2},
		{"never zero", 0.0001, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Count(tt.multiplier, tt.limit))
		})
	}
}

func TestCountOverride(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		limit int
		want  int
	}{
		{"override", "3", 0, 3},
		{"override capped", "32", 4, 4},
		{"invalid ignored", "many", 1, 1},
		{"zero ignored", "0", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvOverride, tt.env)
			assert.Equal(t, tt.want, Count(1.0, tt.limit))
		})
	}
}

func TestVipsConcurrency(t *testing.T) {
	t.Setenv(EnvOverride, "")
	got := VipsConcurrency()
	assert.GreaterOrEqual(t, got, 1)
	assert.LessOrEqual(t, got, 16)

	t.Setenv(EnvOverride, "2")
	assert.Equal(t, 2, VipsConcurrency())
}
