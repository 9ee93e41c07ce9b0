package temporalclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/temporal-agent-loop/internal/logging"
)

func writeProfile(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "temporal.toml")
	profile := "[profile.default]\naddress = \"from-file:7233\"\nnamespace = \"file-ns\"\n"
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o600))
	t.Setenv("TEMPORAL_CONFIG_FILE", path)
}

func TestLoadClientOptions_FromProfile(t *testing.T) {
	writeProfile(t)

	opts, err := LoadClientOptions(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "from-file:7233", opts.HostPort)
	assert.Equal(t, "file-ns", opts.Namespace)
}

func TestLoadClientOptions_OverridesWin(t *testing.T) {
	writeProfile(t)
	logger := logging.Nop()

	opts, err := LoadClientOptions(Overrides{HostPort: "flag:7233", Namespace: "flag-ns", Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, "flag:7233", opts.HostPort)
	assert.Equal(t, "flag-ns", opts.Namespace)
	assert.Equal(t, logger, opts.Logger)
}
