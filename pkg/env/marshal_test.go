package env

import (
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	Provider string `env:"PROVIDER"`
	Key      string `env:"API_KEY,required"`
}

type outer struct {
	inner
	Enabled bool     `env:"ENABLED"`
	Owner   int64    `env:"OWNER_ID"`
	Ratio   float64  `env:"RATIO"`
	Note    string   `env:"NOTE"`
	Exts    []string `env:"EXTS" envSeparator:":"`
	Skipped string
	hidden  string `env:"HIDDEN"`
}

func TestMarshalEnv(t *testing.T) {
	out, err := MarshalEnv(&outer{
		inner:   inner{Provider: "ollama"},
		Enabled: true,
		Owner:   42,
		Note:    "two words # not a comment",
		Exts:    []string{"md", "txt"},
		Skipped: "x",
		hidden:  "y",
	})
	require.NoError(t, err)

	assert.Equal(t, "PROVIDER=ollama\nENABLED=true\nOWNER_ID=42\nNOTE=\"two words # not a comment\"\nEXTS=md:txt\n", out)

	parsed, err := godotenv.Unmarshal(out)
	require.NoError(t, err)
	assert.Equal(t, "two words # not a comment", parsed["NOTE"])
}

func TestMarshalEnvRejectsNonStruct(t *testing.T) {
	_, err := MarshalEnv(outer{})
	assert.Error(t, err)

	s := "x"
	_, err = MarshalEnv(&s)
	assert.Error(t, err)
}

func TestMarshalEnvEmpty(t *testing.T) {
	out, err := MarshalEnv(&outer{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMarshalEnvUnsupportedKind(t *testing.T) {
	type bad struct {
		Limits map[string]int `env:"LIMITS"`
	}
	_, err := MarshalEnv(&bad{Limits: map[string]int{"a": 1}})
	assert.ErrorContains(t, err, "Limits")
}
