package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir runs the test in an empty directory so no stray .env is read.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.DataBackend)
	assert.Equal(t, CacheMemory, cfg.CacheBackend)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "PHP", cfg.Currency)
	assert.NotEmpty(t, cfg.InstanceID)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/opensplit")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.DataBackend)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, "USD", cfg.Currency)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OCR_URL=http://ocr:8000\nCACHE_SIZE=42\n"), 0o600))
	t.Setenv("OCR_URL", "")
	t.Setenv("CACHE_SIZE", "")
	os.Unsetenv("OCR_URL")
	os.Unsetenv("CACHE_SIZE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://ocr:8000", cfg.OCRURL)
	assert.Equal(t, 42, cfg.CacheSize)
}

func TestLoad_Malformed(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "eighty")
	t.Setenv("OCR_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "PORT")
	assert.ErrorContains(t, err, "OCR_TIMEOUT")
}

func TestValidate_CollectsEverything(t *testing.T) {
	cfg := &Config{
		Port:         0,
		DataBackend:  "mongo",
		CacheBackend: CacheRedis,
		CacheTTL:     time.Minute,
		CacheSize:    10,
		OCRTimeout:   time.Second,
		JWTSecret:    "short",
		Currency:     "PESO",
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"PORT", "DATA_BACKEND", "REDIS_URL", "JWT_SECRET", "CURRENCY"} {
		assert.ErrorContains(t, err, want)
	}
}
