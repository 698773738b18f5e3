package validation

import (
	"errors"
	"testing"

	apperrors "github.com/anime-shed/microscan-go/internal/errors"
)

func TestNewURLValidator(t *testing.T) {
	validator := NewURLValidator()
	if validator == nil {
		t.Fatal("Expected non-nil URL validator")
	}

	expectedSchemes := []string{"http", "https"}
	if len(validator.allowedSchemes) != len(expectedSchemes) {
		t.Errorf("Expected %d schemes, got %d", len(expectedSchemes), len(validator.allowedSchemes))
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name        string
		validator   *URLValidator
		url         string
		wantMessage string // empty means valid
	}{
		{"plain http", NewURLValidator(), "http://example.com/image.jpg", ""},
		{"https with path", NewURLValidator(), "https://subdomain.example.com/path/to/image.gif", ""},
		{"ip host", NewURLValidator(), "http://192.168.1.1/image.jpg", ""},
		{"scoring endpoint with port", NewURLValidator(), "http://localhost:8000", ""},
		{"empty", NewURLValidator(), "", "URL cannot be empty"},
		{"whitespace", NewURLValidator(), " \t\n", "URL cannot be empty"},
		{"no scheme", NewURLValidator(), "not-a-url", "URL scheme not allowed"},
		{"ftp scheme", NewURLValidator(), "ftp://example.com/image.jpg", "URL scheme not allowed"},
		{"data uri", NewURLValidator(), "data:image/png;base64,iVBORw0KGgo=", "URL scheme not allowed"},
		{"no host", NewURLValidator(), "http:///path", "URL must have a valid host"},
		{"allowed host", NewURLValidatorWithOptions([]string{"https"}, []string{"example.com"}), "https://example.com/a.png", ""},
		{"allowed host with port", NewURLValidatorWithOptions([]string{"https"}, []string{"example.com"}), "https://example.com:8443/a.png", ""},
		{"disallowed host", NewURLValidatorWithOptions([]string{"https"}, []string{"example.com"}), "https://malicious.com/a.png", "URL host not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validator.ValidateURL(tt.url)
			if tt.wantMessage == "" {
				if err != nil {
					t.Errorf("Expected %q to pass validation, got error: %v", tt.url, err)
				}
				return
			}

			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("Expected AppError, got: %T (%v)", err, err)
			}
			if appErr.Message != tt.wantMessage {
				t.Errorf("Expected %q error, got: %s", tt.wantMessage, appErr.Message)
			}
			if appErr.Type != apperrors.ErrorTypeValidation {
				t.Errorf("Expected validation error type, got %s", appErr.Type)
			}
		})
	}
}

func TestValidateURL_MalformedURL(t *testing.T) {
	err := NewURLValidator().ValidateURL("://missing-scheme")
	if err == nil {
		t.Fatal("Expected malformed URL to fail validation")
	}
}
