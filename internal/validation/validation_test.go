package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidFingerprintHash(t *testing.T) {
	tests := []struct {
		hash  string
		valid bool
	}{
		{"0123456789abcdef0123456789abcdef", true},
		{"test_hash_1234567890123456789012", true},
		{strings.Repeat("é", 32), true}, // counted in characters, not bytes

		{"", false},
		{"short", false},
		{strings.Repeat("a", 31), false},
		{strings.Repeat("a", 33), false},
		{strings.Repeat("a", 31) + "\xff", false},
		{"\xff\xfe" + strings.Repeat("a", 30), false},
		{strings.Repeat("a", 31) + "\x00", false},
		{"abc\x00" + strings.Repeat("a", 28), false},
	}

	for _, tc := range tests {
		if got := IsValidFingerprintHash(tc.hash); got != tc.valid {
			t.Errorf("IsValidFingerprintHash(%q) = %v, want %v", tc.hash, got, tc.valid)
		}
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("hash", "0123456789abcdef0123456789abcdef"),
		ValidHash("hash", "0123456789abcdef0123456789abcdef"),
	)
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}

	errs = Validate(
		Required("hash", ""),
		ValidHash("hash", ""),
	)
	if len(errs) != 1 {
		t.Fatalf("Expected 1 error, got %d", len(errs))
	}
	if errs.Error() != "hash: is required" {
		t.Errorf("Error() = %q", errs.Error())
	}

	errs = Validate(ValidHash("hash", "tooshort"))
	if len(errs) != 1 || errs[0].Message != "must be exactly 32 characters" {
		t.Errorf("unexpected errors %v", errs)
	}
}

func TestHashParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/fingerprint/:hash", HashParamMiddleware("hash"), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	tests := []struct {
		path string
		code int
	}{
		{"/fingerprint/0123456789abcdef0123456789abcdef", http.StatusOK},
		{"/fingerprint/abc", http.StatusBadRequest},
		{"/fingerprint/" + strings.Repeat("a", 40), http.StatusBadRequest},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.code {
			t.Errorf("GET %s = %d, want %d", tc.path, w.Code, tc.code)
		}
		if tc.code == http.StatusBadRequest && !strings.Contains(w.Body.String(), "invalid_hash") {
			t.Errorf("GET %s body = %s", tc.path, w.Body.String())
		}
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestSizeMiddleware(16))
	router.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"components":{"canvas":"xxxxxxxx"}}`)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}
