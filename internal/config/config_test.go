package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFile_JSON(t *testing.T) {
	p := writeFile(t, "config.json", `{
  "styles": {"horror": {"prompt": "Write a scary story", "video": "videos/bg.mp4", "language": "en"}},
  "stories": {"fox": {"story": "The quick brown fox.", "video": "https://example.com/bg.mp4"}}
}`)
	c, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"fox", "horror"}, c.Names())
	assert.Equal(t, filepath.Dir(p), c.Dir)

	r, err := c.Lookup("horror")
	require.NoError(t, err)
	assert.True(t, r.Generated())
	assert.Equal(t, "horror", r.Name)

	r, err = c.Lookup("fox")
	require.NoError(t, err)
	assert.False(t, r.Generated())
	assert.Equal(t, "en", r.Lang())

	_, err = c.Lookup("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadFile_TOML(t *testing.T) {
	p := writeFile(t, "config.toml", `
[styles.mystery]
prompt = "A short mystery"
video = "/abs/bg.mp4"
language = "fr"
mood = "dark"

[stories.hello]
story = "Hello world this is a test"
video = "gs://bucket/bg.mp4"
`)
	c, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "mystery"}, c.Names())
	assert.Equal(t, []string{"styles.mystery.mood"}, c.Undecoded)
	r, err := c.Lookup("mystery")
	require.NoError(t, err)
	assert.Equal(t, "fr", r.Lang())
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"both prompt and story", `{"styles": {"a": {"prompt": "p", "story": "s", "video": "v"}}}`},
		{"story in styles", `{"styles": {"a": {"story": "s", "video": "v"}}}`},
		{"prompt in stories", `{"stories": {"a": {"prompt": "p", "video": "v"}}}`},
		{"neither", `{"stories": {"a": {"video": "v"}}}`},
		{"no video", `{"stories": {"a": {"story": "s"}}}`},
		{"bad language", `{"stories": {"a": {"story": "s", "video": "v", "language": "English"}}}`},
		{"duplicate name", `{"styles": {"a": {"prompt": "p", "video": "v"}}, "stories": {"a": {"story": "s", "video": "v"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, "c.json", tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), err.Error())
		})
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	_, err := LoadFile(writeFile(t, "c.json", `{"styles": `))
	require.Error(t, err)
	_, err = LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog(Record{Name: "x", Story: "s", Video: "v"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, c.Names())

	_, err = NewCatalog(Record{Name: "x", Story: "s", Video: "v"}, Record{Name: "x", Prompt: "p", Video: "v"})
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("IMG_TEST_STR", " value ")
	t.Setenv("IMG_TEST_INT", "12")
	t.Setenv("IMG_TEST_BAD_INT", "x")
	t.Setenv("IMG_TEST_FLOAT", "0.7")
	t.Setenv("IMG_TEST_DUR", "90s")
	t.Setenv("IMG_TEST_LIST", "a.example, ,b.example")

	assert.Equal(t, "value", GetEnv("IMG_TEST_STR", "d"))
	assert.Equal(t, "d", GetEnv("IMG_TEST_UNSET", "d"))
	assert.Equal(t, 12, GetEnvInt("IMG_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("IMG_TEST_BAD_INT", 1))
	assert.Equal(t, 0.7, GetEnvFloat("IMG_TEST_FLOAT", 0))
	assert.Equal(t, 90*time.Second, GetEnvDuration("IMG_TEST_DUR", 0))
	assert.Equal(t, []string{"a.example", "b.example"}, GetEnvList("IMG_TEST_LIST"))
	assert.Nil(t, GetEnvList("IMG_TEST_UNSET"))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("IMG_FROM_DOTENV=yes\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("IMG_FROM_DOTENV") })

	require.NoError(t, LoadEnv(p, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "yes", os.Getenv("IMG_FROM_DOTENV"))
	require.NoError(t, LoadEnv(filepath.Join(dir, "none.env")))
}
