package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	created, err := Write(dir, Data{SiteName: "Jane Doe", SiteURL: "https://jane.dev", Author: "Jane Doe"}, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "site.yaml"),
		filepath.Join(dir, ".env.example"),
	}, created)

	data, err := os.ReadFile(filepath.Join(dir, "site.yaml"))
	require.NoError(t, err)
	var doc struct {
		Name   string `yaml:"name"`
		URL    string `yaml:"url"`
		Routes []struct {
			Path string `yaml:"path"`
		} `yaml:"routes"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "Jane Doe", doc.Name)
	assert.Equal(t, "https://jane.dev", doc.URL)
	require.NotEmpty(t, doc.Routes)
	assert.Equal(t, "/", doc.Routes[0].Path)
}

func TestWriteRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site.yaml"), []byte("name: keep\n"), 0o644))

	_, err := Write(dir, Data{SiteName: "X", SiteURL: "https://x.dev"}, false)
	require.Error(t, err)
	data, _ := os.ReadFile(filepath.Join(dir, "site.yaml"))
	assert.Equal(t, "name: keep\n", string(data))

	_, err = Write(dir, Data{SiteName: "X", SiteURL: "https://x.dev"}, true)
	require.NoError(t, err)
}

func TestTitleFromDir(t *testing.T) {
	assert.Equal(t, "Jane Doe", TitleFromDir("jane-doe"))
	assert.Equal(t, "Folio", TitleFromDir("/tmp/folio"))
}
