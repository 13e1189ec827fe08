package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsConfiguredKey(t *testing.T) {
	cases := map[string]bool{
		"":                               false,
		"   ":                            false,
		"YOUR_COHERE_API_KEY_HERE":       false,
		"your_hugging_face_api_key_here": false,
		"hf_abc123":                      true,
		"sk-live-key":                    true,
	}
	for key, want := range cases {
		assert.Equal(t, want, IsConfiguredKey(key), "key %q", key)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_PATH", dir+"/db/test.db")
	t.Setenv("UPLOAD_DIR", dir+"/uploads")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("PREMIUM_MONTHLY_AMOUNT", "not-a-number")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg := Load()

	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, int64(2000), cfg.MonthlyAmount)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.DirExists(t, dir+"/uploads")
	assert.DirExists(t, dir+"/db")
}
