//go:build unix

package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nautilus-server/internal/attestation"
	"nautilus-server/internal/compute"
	"nautilus-server/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The task reports the number of arguments it received as accuracy, so a
// shell splitting the argument would show up in the signed result.
const argCountTask = `#!/bin/sh
printf '{"accuracy": %d, "loss": 0}\n' "$#"
`

const failingTask = `#!/bin/sh
echo "Traceback: dataset not found" >&2
exit 1
`

func TestProcessWithRealComputation(t *testing.T) {
	dir := t.TempDir()
	argCount := filepath.Join(dir, "arg_count")
	failing := filepath.Join(dir, "failing")
	require.NoError(t, os.WriteFile(argCount, []byte(argCountTask), 0o755))
	require.NoError(t, os.WriteFile(failing, []byte(failingTask), 0o755))

	invoker, err := compute.NewInvoker(map[string]string{
		"ml_task": argCount,
		"failing": failing,
	}, "ml_task", compute.Options{})
	require.NoError(t, err)

	signer := newSigner(t)
	processor := core.NewProcessor(invoker, attestation.NewBuilder(signer, attestation.ProcessData), 10*time.Second)

	signed, err := processor.Process(context.Background(), compute.Request{Argument: "iris.csv ; echo injected && ls"})
	require.NoError(t, err)
	assert.Equal(t, compute.Result{Accuracy: 1, Loss: 0}, signed.Response.Data)
	require.NoError(t, attestation.Verify(signer.Scheme(), signer.PublicKey(), signed))

	_, err = processor.Process(context.Background(), compute.Request{Computation: "failing"})
	var stageErr *core.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, core.KindExecutionFailure, stageErr.Kind)
	assert.NotContains(t, err.Error(), "Traceback")
	assert.Equal(t, 1, signer.calls)
}

func TestProcessLogsResolvedComputation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arg_count")
	require.NoError(t, os.WriteFile(path, []byte(argCountTask), 0o755))

	invoker, err := compute.NewInvoker(map[string]string{"ml_task": path}, "ml_task", compute.Options{})
	require.NoError(t, err)
	processor := core.NewProcessor(invoker, attestation.NewBuilder(newSigner(t), attestation.ProcessData), 10*time.Second)

	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	defer slog.SetDefault(previous)

	_, err = processor.Process(context.Background(), compute.Request{Argument: "iris.csv"})
	require.NoError(t, err)

	found := false
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var entry struct {
			Msg         string `json:"msg"`
			Computation string `json:"computation"`
		}
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry.Msg == "signed computation result" {
			found = true
			assert.Equal(t, "ml_task", entry.Computation)
		}
	}
	assert.True(t, found)
}
