package webhook

import (
	"errors"
	"testing"
)

func TestGenericParse(t *testing.T) {
	body, err := Generic{}.Parse([]byte(`{"text": "disk usage at 91%"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if body != "disk usage at 91%" {
		t.Errorf("body = %q", body)
	}
}

func TestGenericParse_MissingText(t *testing.T) {
	_, err := Generic{}.Parse([]byte(`{"message": "wrong key"}`))
	var perr *PayloadError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PayloadError", err)
	}
	if perr.Field != "text" {
		t.Errorf("field = %q, want text", perr.Field)
	}
}

func TestBuiltinIntegrations(t *testing.T) {
	m := BuiltinIntegrations()
	for _, slug := range []string{"azuredevops", "generic"} {
		if _, ok := m[slug]; !ok {
			t.Errorf("missing builtin integration %q", slug)
		}
	}
}
