package enginelog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fensak-dev/approval-engine/internal/enginelog"
)

func TestScope_CaptureMode_CollectsEntries(t *testing.T) {
	scope := enginelog.NewDiscarding(enginelog.ModeCapture)
	scope.Console("info", "checking rule")
	scope.Console("warn", "unusual patch shape")

	entries := scope.Captured()
	assert.Equal(t, []enginelog.Entry{
		{Level: "info", Msg: "checking rule"},
		{Level: "warn", Msg: "unusual patch shape"},
	}, entries)
}

func TestScope_DropMode_DiscardsEntries(t *testing.T) {
	scope := enginelog.NewDiscarding(enginelog.ModeDrop)
	scope.Console("info", "checking rule")
	assert.Empty(t, scope.Captured())
}

func TestScope_ConsoleMode_DoesNotCapture(t *testing.T) {
	scope := enginelog.NewDiscarding(enginelog.ModeConsole)
	scope.Console("error", "boom")
	assert.Empty(t, scope.Captured())
}

func TestScope_InvocationID_IsStable(t *testing.T) {
	scope := enginelog.NewDiscarding(enginelog.ModeDrop)
	id := scope.InvocationID()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, scope.InvocationID())
}
