package auth

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestExtractAPIKey_QueryParam(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/external/azuredevops?api_key=abc123", nil)

	key, err := ExtractAPIKey(r)
	if err != nil {
		t.Fatalf("ExtractAPIKey: %v", err)
	}
	if key != "abc123" {
		t.Errorf("key = %q, want abc123", key)
	}
}

func TestExtractAPIKey_BearerHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/external/azuredevops", nil)
	r.Header.Set("Authorization", "Bearer xyz789")

	key, err := ExtractAPIKey(r)
	if err != nil {
		t.Fatalf("ExtractAPIKey: %v", err)
	}
	if key != "xyz789" {
		t.Errorf("key = %q, want xyz789", key)
	}
}

func TestExtractAPIKey_QueryParamWins(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/external/azuredevops?api_key=fromquery", nil)
	r.Header.Set("Authorization", "Bearer fromheader")

	key, err := ExtractAPIKey(r)
	if err != nil {
		t.Fatalf("ExtractAPIKey: %v", err)
	}
	if key != "fromquery" {
		t.Errorf("key = %q, want fromquery", key)
	}
}

func TestExtractAPIKey_Missing(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/external/azuredevops", nil)

	if _, err := ExtractAPIKey(r); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestExtractAPIKey_BadHeaderFormat(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	if _, err := ExtractAPIKey(r); err == nil {
		t.Error("expected error for non-bearer Authorization header")
	}
}

func TestRegistryAuthenticate(t *testing.T) {
	reg := NewRegistry([]Bot{
		{Name: "azure-bot", APIKey: "key-one", Stream: "builds"},
		{Name: "generic-bot", APIKey: "key-two", Stream: "alerts"},
	})

	tests := []struct {
		name      string
		presented string
		wantBot   string
		wantOK    bool
	}{
		{name: "first bot", presented: "key-one", wantBot: "azure-bot", wantOK: true},
		{name: "second bot", presented: "key-two", wantBot: "generic-bot", wantOK: true},
		{name: "unknown key", presented: "nope", wantOK: false},
		{name: "empty key", presented: "", wantOK: false},
		{name: "prefix of real key", presented: "key-on", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot, ok := reg.Authenticate(tt.presented)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && bot.Name != tt.wantBot {
				t.Errorf("bot = %q, want %q", bot.Name, tt.wantBot)
			}
		})
	}
}

func TestBotContextRoundTrip(t *testing.T) {
	b := Bot{Name: "azure-bot", APIKey: "k", Stream: "builds"}
	ctx := WithBot(context.Background(), b)

	got, ok := BotFromContext(ctx)
	if !ok {
		t.Fatal("expected bot in context")
	}
	if got.Name != "azure-bot" || got.Stream != "builds" {
		t.Errorf("got %+v", got)
	}

	if _, ok := BotFromContext(context.Background()); ok {
		t.Error("empty context should have no bot")
	}
}
