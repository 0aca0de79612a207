package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIniFile_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kxkbrc")

	f, err := LoadIniFile(path)
	require.NoError(t, err)
	assert.Empty(t, f.Section("Layout").Key("Model").String())
}

func TestSaveIniAtomic_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kxkbrc")

	f, err := LoadIniFile(path)
	require.NoError(t, err)
	layout := f.Section("Layout")
	layout.Key("LayoutList").SetValue("us,de")
	layout.Key("VariantList").SetValue(",neo")
	layout.Key("Use").SetValue("true")

	require.NoError(t, SaveIniAtomic(f, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "[Layout]")
	assert.Contains(t, content, "LayoutList=us,de", "desktop files use key=value without spaces")
	assert.Contains(t, content, "VariantList=,neo")

	// No temp files left behind
	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	reloaded, err := LoadIniFile(path)
	require.NoError(t, err)
	assert.Equal(t, "us,de", reloaded.Section("Layout").Key("LayoutList").String())
}

func TestSaveIniAtomic_PreservesForeignKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kxkbrc")
	seed := "[Layout]\nModel=pc105\nOptions=grp:alt_shift_toggle\n\n[Other]\nKeep=1\n"
	require.NoError(t, os.WriteFile(path, []byte(seed), 0644))

	f, err := LoadIniFile(path)
	require.NoError(t, err)
	f.Section("Layout").Key("LayoutList").SetValue("us")
	require.NoError(t, SaveIniAtomic(f, path))

	reloaded, err := LoadIniFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pc105", reloaded.Section("Layout").Key("Model").String())
	assert.Equal(t, "us", reloaded.Section("Layout").Key("LayoutList").String())
	assert.Equal(t, "1", reloaded.Section("Other").Key("Keep").String())
}

func TestSaveIniAtomic_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kxkbrc")

	f, err := LoadIniFile(path)
	require.NoError(t, err)
	f.Section("Layout").Key("Use").SetValue("true")

	require.NoError(t, SaveIniAtomic(f, path))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
