package commands

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestSeverityColor(t *testing.T) {
	assert.True(t, severityColor("critical").Equals(color.New(color.FgRed, color.Bold)))
	assert.True(t, severityColor("CRITICAL").Equals(color.New(color.FgRed, color.Bold)))
	assert.True(t, severityColor("high").Equals(color.New(color.FgRed)))
	assert.True(t, severityColor("medium").Equals(color.New(color.FgYellow)))
	assert.True(t, severityColor("low").Equals(color.New(color.FgCyan)))
	assert.True(t, severityColor("info").Equals(color.New(color.FgWhite)))
	assert.True(t, severityColor("").Equals(color.New(color.FgWhite)))
}

func TestColoredSeverity(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	assert.Equal(t, "-", coloredSeverity(""))
	assert.Equal(t, "high", coloredSeverity("high"))
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "watch", orDash("watch"))
}

func TestGradeColor(t *testing.T) {
	assert.True(t, gradeColor("A").Equals(color.New(color.FgGreen)))
	assert.True(t, gradeColor("B").Equals(color.New(color.FgGreen)))
	assert.True(t, gradeColor("C").Equals(color.New(color.FgYellow)))
	assert.True(t, gradeColor("D").Equals(color.New(color.FgRed, color.Bold)))
	assert.True(t, gradeColor("F").Equals(color.New(color.FgRed, color.Bold)))
}
