package modlink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feederFunc func(any) error

func (f feederFunc) Feed(structure any) error { return f(structure) }

func TestLoadConfigDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, LoadConfig(cfg))

	assert.Equal(t, "integration", cfg.CorpusDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ":8089", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.StopTimeout)
	assert.Empty(t, cfg.SessionSchedule)
}

func TestLoadConfigFeedersRunInOrder(t *testing.T) {
	cfg := &Config{}
	err := LoadConfig(cfg,
		feederFunc(func(s any) error {
			s.(*Config).LogLevel = "debug"
			s.(*Config).CorpusDir = "from-file"
			return nil
		}),
		feederFunc(func(s any) error {
			s.(*Config).CorpusDir = "from-env"
			return nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.CorpusDir)
}

func TestLoadConfigErrors(t *testing.T) {
	boom := errors.New("boom")
	assert.ErrorIs(t, LoadConfig(&Config{}, feederFunc(func(any) error { return boom })), boom)

	err := LoadConfig(&Config{LogLevel: "loud", SessionSchedule: "every tuesday"})
	assert.ErrorIs(t, err, ErrConfigValidationFailed)
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
	assert.ErrorIs(t, err, ErrInvalidSessionSchedule)

	assert.ErrorIs(t, LoadConfig(&Config{LogFormat: "xml"}), ErrInvalidLogFormat)
	assert.ErrorIs(t, LoadConfig(nil), ErrConfigNil)
	assert.ErrorIs(t, LoadConfig(Config{}), ErrConfigNotPointer)
	s := "x"
	assert.ErrorIs(t, LoadConfig(&s), ErrConfigNotStruct)
}

type requiredConfig struct {
	Name    string        `required:"true"`
	Tags    []string      `default:"a, b"`
	Retries int           `default:"3"`
	Wait    time.Duration `default:"bad"`
}

func TestRequiredAndDefaultTags(t *testing.T) {
	cfg := &requiredConfig{Wait: time.Second}
	require.NoError(t, ProcessConfigDefaults(cfg))
	assert.Equal(t, []string{"a", "b"}, cfg.Tags)
	assert.Equal(t, 3, cfg.Retries)

	err := ValidateConfigRequired(cfg)
	assert.ErrorIs(t, err, ErrConfigRequiredFieldMissing)
	assert.Contains(t, err.Error(), "Name")

	assert.ErrorIs(t, ProcessConfigDefaults(&requiredConfig{}), ErrDefaultValueParseError)
}

func TestGenerateSampleConfig(t *testing.T) {
	for _, format := range []string{"yaml", "toml", "json"} {
		t.Run(format, func(t *testing.T) {
			data, err := GenerateSampleConfig(&Config{}, format)
			require.NoError(t, err)
			assert.Contains(t, string(data), "corpus_dir")
			assert.Contains(t, string(data), "integration")
		})
	}
	_, err := GenerateSampleConfig(&Config{}, "ini")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	docs := ConfigFieldDocs(&Config{})
	assert.Equal(t, "Directory holding integration descriptors", docs["corpus_dir"])
	assert.Contains(t, docs, "session_schedule")
}
