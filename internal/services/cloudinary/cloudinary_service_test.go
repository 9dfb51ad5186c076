package cloudinary

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wafferli/wafferli-api/internal/config"
)

func testService(t *testing.T) *CloudinaryService {
	t.Helper()
	cfg := &config.Config{}
	cfg.CloudinaryConfig.APISecret = "top-secret"
	return &CloudinaryService{cfg: cfg}
}

func TestSignatureIsDeterministicAndSorted(t *testing.T) {
	s := testService(t)

	params := map[string]string{
		"timestamp":     "1700000000",
		"folder":        "wafferli/ads",
		"upload_preset": "wafferli_preset",
	}

	// Порядок ключей в map не влияет на результат
	first := s.GenerateSignature(params)
	second := s.GenerateSignature(params)
	assert.Equal(t, first, second)

	// Подпись строится по отсортированным ключам с секретом в конце
	h := sha1.New()
	h.Write([]byte("folder=wafferli/ads&timestamp=1700000000&upload_preset=wafferli_preset" + "top-secret"))
	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), first)
}

func TestUploadParamsSignPresetAndFolder(t *testing.T) {
	cfg := &config.Config{}
	cfg.CloudinaryConfig.CloudName = "demo"
	cfg.CloudinaryConfig.APIKey = "key"
	cfg.CloudinaryConfig.APISecret = "top-secret"
	s := &CloudinaryService{cfg: cfg, uploadPreset: "wafferli_preset", uploadFolder: "wafferli/ads"}

	app := fiber.New()
	app.Get("/api/upload/params", s.GenerateUploadParams)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/upload/params?ad_id=abc", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Timestamp    string `json:"timestamp"`
		Signature    string `json:"signature"`
		UploadPreset string `json:"upload_preset"`
		Folder       string `json:"folder"`
		AdID         string `json:"ad_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	assert.Equal(t, "wafferli_preset", result.UploadPreset)
	assert.Equal(t, "wafferli/ads", result.Folder)
	assert.Equal(t, "abc", result.AdID)

	// Клиент передает при загрузке preset и folder, значит они в подписи
	expected := s.GenerateSignature(map[string]string{
		"timestamp":     result.Timestamp,
		"upload_preset": "wafferli_preset",
		"folder":        "wafferli/ads",
	})
	assert.Equal(t, expected, result.Signature)
}

func TestSignatureChangesWithParams(t *testing.T) {
	s := testService(t)

	a := s.GenerateSignature(map[string]string{"timestamp": "1700000000"})
	b := s.GenerateSignature(map[string]string{"timestamp": "1700000001"})
	assert.NotEqual(t, a, b)
}
