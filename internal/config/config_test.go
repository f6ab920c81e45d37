package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileAppliesOnlyPresentKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inigma.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"addr: \":9090\"\nretention_days: 30\ncleanup_interval: 1h\naudit_logs: false\n",
	), 0o600))

	c := &Config{
		Addr:            ":8080",
		DBPath:          "inigma.db",
		RetentionDays:   50,
		CleanupInterval: 24 * time.Hour,
		AuditLogs:       true,
	}
	require.NoError(t, c.loadFile(path, nil))

	assert.Equal(t, ":9090", c.Addr)
	assert.Equal(t, 30, c.RetentionDays)
	assert.Equal(t, time.Hour, c.CleanupInterval)
	assert.False(t, c.AuditLogs)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, "inigma.db", c.DBPath)
}

func TestLoadFileSkipsExplicitFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inigma.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\ndb: \"file.db\"\n"), 0o600))

	c := &Config{Addr: ":7070", DBPath: "inigma.db"}
	require.NoError(t, c.loadFile(path, map[string]bool{"addr": true}))

	assert.Equal(t, ":7070", c.Addr, "command line flag wins over file")
	assert.Equal(t, "file.db", c.DBPath)
}

func TestLoadFileRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unclosed"), 0o600))

	c := &Config{}
	assert.Error(t, c.loadFile(path, nil))
}
