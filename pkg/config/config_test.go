package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturador-sunat/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUNAT_ENV", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "beta", cfg.SUNAT.Environment)
	assert.Equal(t, 60*time.Second, cfg.SUNAT.Timeout)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.False(t, cfg.DB.Enabled())
	assert.Equal(t, 10, cfg.DB.MaxConns)
	assert.Equal(t, time.Hour, cfg.DB.ConnMaxLifetime)
}

func TestLoad_SunatEnvironments(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUNAT_ENV", "PROD")
	t.Setenv("SUNAT_RUC", "20123456789")
	t.Setenv("SUNAT_SOL_USER_BETA", "MODDATOS")
	t.Setenv("SUNAT_SOL_PASSWORD_BETA", "moddatos")
	t.Setenv("SUNAT_SOL_USER_PROD", "FACTUR01")
	t.Setenv("SUNAT_CERT_PATH_PROD", "/certs/prod.p12")
	t.Setenv("SUNAT_TIMEOUT_SECONDS", "15")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.SUNAT.Timeout)

	env, prod, err := cfg.SUNAT.For("")
	require.NoError(t, err)
	assert.Equal(t, "prod", env)
	assert.Equal(t, "FACTUR01", prod.SolUser)
	assert.Equal(t, "/certs/prod.p12", prod.CertPath)

	env, beta, err := cfg.SUNAT.For("beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", env)
	assert.Equal(t, "MODDATOS", beta.SolUser)
	assert.Equal(t, "moddatos", beta.SolPassword)
}

func TestLoad_UnknownEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUNAT_ENV", "staging")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestDBConfig_DSN(t *testing.T) {
	c := config.DBConfig{Host: "db", Port: 5432, User: "cpe", Password: "p@ss/word", DBName: "sunat", SSLMode: "disable"}
	assert.Equal(t, "postgres://cpe:p%40ss%2Fword@db:5432/sunat?sslmode=disable", c.DSN())
	assert.True(t, c.Enabled())
}

func TestDBConfig_ConnStringPrefersDatabaseURL(t *testing.T) {
	c := config.DBConfig{DatabaseURL: "postgresql://u:p@pooler:6543/sunat?sslmode=require", Host: "db", Port: 5432}
	assert.Equal(t, c.DatabaseURL, c.ConnString())

	c.DatabaseURL = ""
	assert.Equal(t, c.DSN(), c.ConnString())
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
