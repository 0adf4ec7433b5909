package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckProtection_BotMarkers(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"cloudflare verification div", `<div id="cf-browser-verification" class="managed-form"></div>`},
		{"cloudflare ray footer", `<span>Cloudflare Ray ID: 8a1b2c3d</span>`},
		{"interstitial title", `<title>Just a moment...</title>`},
		{"recaptcha script", `<script src="https://www.google.com/recaptcha/api.js"></script>`},
		{"hcaptcha script", `<script src="https://js.hcaptcha.com/1/api.js"></script>`},
		{"human check", `<p>Please verify you are human before continuing.</p>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkProtection(tt.html, "https://example.com/careers")
			var bot *BotProtectionError
			require.ErrorAs(t, err, &bot)
			assert.Equal(t, "https://example.com/careers", bot.URL)
			assert.NotEmpty(t, bot.Marker)
		})
	}
}

func TestCheckProtection_SignInWall(t *testing.T) {
	page := `<html><body>
		<h1>Please sign in</h1>
		<form><input type="password" name="pw"><p>Sign in to continue</p></form>
	</body></html>`

	err := checkProtection(page, "https://example.com/jobs")
	var auth *AuthError
	require.ErrorAs(t, err, &auth)
}

func TestCheckProtection_PasswordFieldAloneIsFine(t *testing.T) {
	// A careers page with a login link in the navigation is not a wall.
	page := `<html><body>
		<nav><form><input type="password"></form></nav>
		<ul class="jobs"><li>Engineer</li></ul>
	</body></html>`

	assert.NoError(t, checkProtection(page, "https://example.com/jobs"))
}

func TestCheckProtection_CleanPage(t *testing.T) {
	page := `<html><head><title>Careers</title></head><body>
		<ul><li class="job"><a href="/jobs/1">Engineer</a></li></ul>
	</body></html>`

	assert.NoError(t, checkProtection(page, "https://example.com/careers"))
}

func TestProtectedAPIHint(t *testing.T) {
	assert.NotEmpty(t, protectedAPIHint(`{"message":"This endpoint requires a token"}`))
	assert.NotEmpty(t, protectedAPIHint(`{"error":"API key required"}`))
	assert.Empty(t, protectedAPIHint(`{"jobs":[]}`))
}
