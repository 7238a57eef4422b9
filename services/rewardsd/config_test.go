package rewardsd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rewardvault/native/rewards"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigYAMLDefaults(t *testing.T) {
	path := writeFile(t, "rewardsd.yaml", `
listen: ":9000"
min_claim: 50000000
request_ttl: 90s
admin:
  hmac_secret: "0123456789abcdef0123"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, uint64(50_000_000), cfg.MinClaim)
	require.Equal(t, 90*time.Second, cfg.RequestTTL.Duration)
	require.Equal(t, "data/rewardsd", cfg.DataDir)
	require.Equal(t, float64(600), cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, "rewardsd", cfg.Admin.Audience)
	require.Equal(t, rewards.DefaultProgramID, cfg.Program())
}

func TestLoadConfigTOMLWithSecretFromEnv(t *testing.T) {
	t.Setenv("REWARDSD_TEST_SECRET", "fedcba9876543210fedcba")
	program := rewards.HashUserRef("program")
	path := writeFile(t, "rewardsd.toml", `
listen = ":9100"
program_id = "`+program.String()+`"
request_ttl = "2m"

[admin]
hmac_secret_env = "REWARDSD_TEST_SECRET"

[logging]
format = "text"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9100", cfg.ListenAddress)
	require.Equal(t, "fedcba9876543210fedcba", cfg.Admin.HMACSecret)
	require.Equal(t, 2*time.Minute, cfg.RequestTTL.Duration)
	require.Equal(t, program, cfg.Program())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing secret": "listen: \":1\"\n",
		"short secret":   "admin:\n  hmac_secret: short\n",
		"bad program":    "program_id: nope\nadmin:\n  hmac_secret: \"0123456789abcdef0123\"\n",
		"bad format":     "logging:\n  format: xml\nadmin:\n  hmac_secret: \"0123456789abcdef0123\"\n",
		"bad duration":   "request_ttl: soon\nadmin:\n  hmac_secret: \"0123456789abcdef0123\"\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "rewardsd.yaml", contents))
			require.Error(t, err)
		})
	}
}
