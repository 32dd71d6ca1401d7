package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/xdump/internal/config"
	"firestige.xyz/xdump/internal/core"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidatePrintsEffectiveConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
xdump:
  interface: eth0
  data_home: /data
  start_time: "09:00"
  end_time: "18:00"
`), 0644))

	out, err := execute(t, "validate", "-c", path, "-x", "22,443", "-p", "lab")
	require.NoError(t, err)
	assert.Contains(t, out, "# VALID: window 09:00-18:00")

	var parsed map[string]config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	cfg := parsed["xdump"]
	assert.Equal(t, "eth0", cfg.Interface)
	assert.Equal(t, []int{22, 443}, cfg.ExcludedPorts)
	assert.Equal(t, "lab", cfg.FilePrefix)
	assert.Equal(t, 128, cfg.Capture.QueueSize)
}

func TestValidateRejectsMorningEnd(t *testing.T) {
	_, err := execute(t, "validate", "-i", "eth0", "-d", "/data", "-s", "08:00", "-e", "11:30")
	assert.True(t, errors.Is(err, core.ErrInvalidWindow))
}

func TestValidateRejectsMissingDataHome(t *testing.T) {
	_, err := execute(t, "validate", "-i", "eth0", "-s", "09:00", "-e", "18:00")
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestValidateMissingExplicitConfig(t *testing.T) {
	_, err := execute(t, "validate", "-c", filepath.Join(t.TempDir(), "absent.yml"))
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestValidateRejectsBadBpfFilter(t *testing.T) {
	t.Setenv("XDUMP_CAPTURE_BPF_FILTER", "port not-a-number")
	_, err := execute(t, "validate", "-i", "eth0", "-d", "/data", "-s", "09:00", "-e", "18:00")
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}
