package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/scanbridge/cmd"
)

// Commands share package-level flag variables, so these tests run sequentially.

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := cmd.NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "error"))

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestValidateCmd(t *testing.T) { //nolint:paralleltest // shared cobra flags
	out, err := run(t, "validate", "4006381333931", "036000291452")
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "EAN13", results[0]["format"])
	assert.Equal(t, "UPCA", results[1]["format"])

	_, err = run(t, "validate", "4006381333932")
	require.Error(t, err)
}

func TestResolveCmd(t *testing.T) { //nolint:paralleltest // shared cobra flags
	path := writeConfig(t, "resolver:\n  not_found_policy: not_found\n")

	out, err := run(t, "resolve", "--config", path, "1234567890123", "4006381333931")
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0]["match"])
	assert.Equal(t, "not_found", results[1]["match"])
}

func TestCheckCmd(t *testing.T) { //nolint:paralleltest // shared cobra flags
	path := writeConfig(t, "transports:\n  camera:\n    enabled: false\n")

	out, err := run(t, "check", "--config", path)
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, path, res["config"])
	assert.NotContains(t, res["transports"], "camera")
	assert.InDelta(t, 5, res["products"], 0)

	_, err = run(t, "check", "--config", writeConfig(t, "scanner:\n  fuzzy_match_threshold: 2\n"))
	require.Error(t, err)
}

func TestScanCmd_Demo(t *testing.T) { //nolint:paralleltest // shared cobra flags
	path := writeConfig(t, `
scanner:
  demo_latency: 1ms
  demo_success_rate: 1
transports:
  camera: {enabled: false}
  hid: {enabled: false}
  serial: {enabled: false}
  network: {enabled: false}
  bluetooth: {enabled: false}
`)

	out, err := run(t, "scan", "--config", path, "--device", "demo", "--timeout", "5s", "--resolve")
	require.NoError(t, err)

	var res struct {
		Result struct {
			Success bool   `json:"success"`
			Barcode string `json:"barcode"`
		} `json:"result"`
		Product *struct {
			Code string `json:"code"`
		} `json:"product"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Result.Success)
	require.NotNil(t, res.Product)
	assert.Equal(t, res.Result.Barcode, res.Product.Code)

	_, err = run(t, "scan", "--config", path)
	require.Error(t, err)
}
