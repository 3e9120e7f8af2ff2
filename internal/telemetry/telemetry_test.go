package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledInstallsNoopProviders(t *testing.T) {
	require.NoError(t, Init(context.Background(), false, nil, "af", "test"))
	r := NewRecorder("")
	_, end := r.Start(context.Background(), "noop")
	end(errors.New("boom"))
}

func TestEnabledExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	require.NoError(t, Init(ctx, true, &buf, "af", "test"))

	r := NewRecorder("")
	_, end := r.Start(ctx, "StartSprint")
	end(nil)
	Shutdown(ctx)

	assert.Contains(t, buf.String(), "workflow.StartSprint")
	require.NoError(t, Init(ctx, false, nil, "af", "test"))
}
