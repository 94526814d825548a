package commands

import (
	"testing"

	"github.com/agentsight/agentsight/internal/engine"
	"github.com/stretchr/testify/assert"
)

func TestWorstVerdict(t *testing.T) {
	tests := []struct {
		name string
		a, b engine.ScanVerdict
		want engine.ScanVerdict
	}{
		{"clean stays clean", engine.VerdictClean, engine.VerdictClean, engine.VerdictClean},
		{"flag beats clean", engine.VerdictClean, engine.VerdictFlag, engine.VerdictFlag},
		{"block beats flag", engine.VerdictFlag, engine.VerdictBlock, engine.VerdictBlock},
		{"block beats quarantine", engine.VerdictQuarantine, engine.VerdictBlock, engine.VerdictBlock},
		{"keeps earlier block", engine.VerdictBlock, engine.VerdictClean, engine.VerdictBlock},
		{"quarantine beats flag", engine.VerdictFlag, engine.VerdictQuarantine, engine.VerdictQuarantine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, worstVerdict(tt.a, tt.b))
		})
	}
}

func TestOrIndex(t *testing.T) {
	assert.Equal(t, "m1", orIndex("m1", 0))
	assert.Equal(t, "#1", orIndex("", 0))
	assert.Equal(t, "#4", orIndex("", 3))
}
