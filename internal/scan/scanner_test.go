package scan

import (
	"strings"
	"testing"

	"github.com/rakapra/domainwatch/internal/config"
	"go.uber.org/zap"
)

func newTestScanner(env *config.Env) *Scanner {
	if env == nil {
		env = &config.Env{}
	}
	return NewScanner(env, zap.NewNop())
}

func TestDetectBotChallenge(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"verify phrase", "Please wait while we verify your browser before continuing.", true},
		{"verification phrase", "Your request is being verified...", true},
		{"recaptcha phrase", "Solve the reCAPTCHA below to verify you are human", true},
		{"case insensitive", "WAIT WHILE WE VERIFY", true},
		{"plain error page", "<html><body>502 Bad Gateway</body></html>", false},
		{"empty", "", false},
		{"phrase beyond snippet window", strings.Repeat("x", botSnippetLen) + "wait while we verify", false},
		{"phrase within snippet window", strings.Repeat("x", botSnippetLen-30) + "wait while we verify", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := detectBotChallenge(tt.body)
			if got != tt.want {
				t.Errorf("detectBotChallenge() = %v, want %v", got, tt.want)
			}
			if got && reason == "" {
				t.Error("detectBotChallenge() matched but returned no phrase")
			}
		})
	}
}

func TestNormalizeRESTBase(t *testing.T) {
	tests := []struct {
		name     string
		override string
		siteURL  string
		want     string
	}{
		{"derived from origin", "", "https://example.com", "https://example.com/wp-json"},
		{"origin strips path", "", "https://example.com/blog/page", "https://example.com/wp-json"},
		{"origin keeps port", "", "http://example.com:8080/x", "http://example.com:8080/wp-json"},
		{"absolute override wins", "https://api.example.com/wp-json", "https://example.com", "https://api.example.com/wp-json"},
		{"override trailing slash trimmed", "https://api.example.com/wp-json/", "https://example.com", "https://api.example.com/wp-json"},
		{"override scheme case insensitive", "HTTPS://api.example.com/wp-json", "https://example.com", "HTTPS://api.example.com/wp-json"},
		{"relative override ignored", "/custom-json", "https://example.com", "https://example.com/wp-json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRESTBase(tt.override, tt.siteURL)
			if err != nil {
				t.Fatalf("NormalizeRESTBase() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeRESTBase(%q, %q) = %q, want %q", tt.override, tt.siteURL, got, tt.want)
			}
		})
	}
}

func TestHTTPSuccess(t *testing.T) {
	for status, want := range map[int]bool{
		200: true, 204: true, 301: true, 399: true,
		199: false, 400: false, 403: false, 500: false, 0: false, -200: false,
	} {
		if got := httpSuccess(status); got != want {
			t.Errorf("httpSuccess(%d) = %v, want %v", status, got, want)
		}
	}
}
