package shared

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLogLevel(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  log.Level
		err   bool
	}{
		{name: "empty defaults to info", input: "", want: log.InfoLevel},
		{name: "debug", input: "debug", want: log.DebugLevel},
		{name: "mixed case", input: "WaRn", want: log.WarnLevel},
		{name: "unknown", input: "loud", want: log.InfoLevel, err: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.err {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	t.Run("short secrets are fully masked", func(t *testing.T) {
		if got := Redact("abc"); got != "***" {
			t.Errorf("expected ***, got %s", got)
		}
	})

	t.Run("long secrets keep their ends", func(t *testing.T) {
		got := Redact("BQDabcdefghijklmnopXYZW")
		if !strings.HasPrefix(got, "BQDa") || !strings.HasSuffix(got, "XYZW") {
			t.Errorf("unexpected redaction %s", got)
		}
		if strings.Contains(got, "efgh") {
			t.Errorf("redaction leaked the middle: %s", got)
		}
	})
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected distinct IDs")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string, got %s", a)
	}
}

func TestFormatDuration(t *testing.T) {
	tc := map[int]string{
		0:    "0:00",
		59:   "0:59",
		215:  "3:35",
		3600: "1:00:00",
		3725: "1:02:05",
		-4:   "0:00",
	}
	for in, want := range tc {
		t.Run(fmt.Sprint(in), func(t *testing.T) {
			if got := FormatDuration(in); got != want {
				t.Errorf("FormatDuration(%d) = %s, want %s", in, got, want)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	t.Run("TransportError matches ErrTransport and unwraps", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := fmt.Errorf("wrapped: %w", &TransportError{Op: "token", Err: cause})
		if !errors.Is(err, ErrTransport) {
			t.Error("expected errors.Is(err, ErrTransport)")
		}
		if !errors.Is(err, cause) {
			t.Error("expected the cause to be reachable")
		}
	})

	t.Run("AuthorizationError carries oauth fields", func(t *testing.T) {
		err := &AuthorizationError{Status: 400, Code: "invalid_grant", Description: "Invalid refresh token"}
		if !errors.Is(err, ErrAuthFailed) {
			t.Error("expected errors.Is(err, ErrAuthFailed)")
		}
		if !strings.Contains(err.Error(), "invalid_grant") {
			t.Errorf("expected code in message, got %s", err.Error())
		}

		var ae *AuthorizationError
		if !errors.As(fmt.Errorf("x: %w", err), &ae) || ae.Status != 400 {
			t.Error("expected errors.As to recover the status")
		}
	})

	t.Run("ScopeError lists missing scopes", func(t *testing.T) {
		err := &ScopeError{Missing: []string{"user-read-private", "user-top-read"}}
		if !errors.Is(err, ErrMissingScope) {
			t.Error("expected errors.Is(err, ErrMissingScope)")
		}
		if !strings.Contains(err.Error(), "user-top-read") {
			t.Errorf("unexpected message %s", err.Error())
		}
	})

	t.Run("APIError", func(t *testing.T) {
		err := &APIError{Status: 404, Message: "Non existing id"}
		if !errors.Is(err, ErrAPIRequest) {
			t.Error("expected errors.Is(err, ErrAPIRequest)")
		}
		if !strings.Contains(err.Error(), "404") {
			t.Errorf("unexpected message %s", err.Error())
		}
	})
}

func TestOpenBrowser(t *testing.T) {
	origRuntime, origStart := getRuntime, startCommand
	t.Cleanup(func() { getRuntime, startCommand = origRuntime, origStart })

	t.Run("uses the platform launcher", func(t *testing.T) {
		var gotName string
		var gotArgs []string
		getRuntime = func() string { return "linux" }
		startCommand = func(name string, args ...string) error {
			gotName, gotArgs = name, args
			return nil
		}

		if err := OpenBrowser("https://accounts.spotify.com/authorize"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotName != "xdg-open" || len(gotArgs) != 1 {
			t.Errorf("expected xdg-open <url>, got %s %v", gotName, gotArgs)
		}
	})

	t.Run("unsupported platform", func(t *testing.T) {
		getRuntime = func() string { return "plan9" }
		if err := OpenBrowser("https://example.com"); err == nil {
			t.Error("expected an error for an unsupported platform")
		}
	})

	t.Run("launch failure is wrapped", func(t *testing.T) {
		getRuntime = func() string { return "darwin" }
		startCommand = func(string, ...string) error { return errors.New("not found") }
		if err := OpenBrowser("https://example.com"); err == nil || !strings.Contains(err.Error(), "failed to open browser") {
			t.Errorf("expected wrapped launch error, got %v", err)
		}
	})
}

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name          string
		title, artist string
		want          string
	}{
		{name: "case and spacing", title: "  Hey   Jude ", artist: "The BEATLES", want: "hey jude|the beatles"},
		{name: "punctuation", title: "Don't Stop Me Now!", artist: "Queen", want: "dont stop me now|queen"},
		{name: "bracketed suffix", title: "Let It Be (Remastered 2009) [Live]", artist: "The Beatles", want: "let it be|the beatles"},
		{name: "unicode letters", title: "Ça plane pour moi", artist: "Plastic Bertrand", want: "ça plane pour moi|plastic bertrand"},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTrackKey(tt.title, tt.artist); got != tt.want {
				t.Errorf("NormalizeTrackKey(%q, %q) = %q, want %q", tt.title, tt.artist, got, tt.want)
			}
		})
	}
}
