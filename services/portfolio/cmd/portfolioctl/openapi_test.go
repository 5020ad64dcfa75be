package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPublishedOpenAPIMatchesDomain(t *testing.T) {
	doc, err := loadDoc(filepath.Join("..", "..", "..", "..", "api", "openapi.yaml"))
	if err != nil {
		t.Fatalf("load doc: %v", err)
	}
	if err := checkDoc(doc); err != nil {
		t.Fatalf("check doc: %v", err)
	}
}

func TestCheckDocReportsDrift(t *testing.T) {
	doc, err := loadDoc(filepath.Join("..", "..", "..", "..", "api", "openapi.yaml"))
	if err != nil {
		t.Fatalf("load doc: %v", err)
	}
	item := doc.Components.Schemas["PortfolioItem"]
	delete(item.Properties, "imageUrl")
	doc.Components.Schemas["PortfolioItem"] = item

	err = checkDoc(doc)
	if err == nil || !strings.Contains(err.Error(), `"imageUrl"`) {
		t.Fatalf("expected missing imageUrl error, got %v", err)
	}
}

func TestValidateErrorResponse(t *testing.T) {
	err := validateErrorResponse(schema{Type: "object", Properties: map[string]schema{"error": {Type: "string"}}})
	if err == nil {
		t.Fatalf("expected error when \"error\" is not required")
	}
	ok := schema{
		Type:       "object",
		Required:   []string{"error"},
		Properties: map[string]schema{"error": {Type: "string"}},
	}
	if err := validateErrorResponse(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://user:pw@db:5432/portfolio": "postgres://***@db:5432/portfolio",
		"sqlite://portfolio.db":                "sqlite://portfolio.db",
	}
	for in, want := range cases {
		if got := redactDSN(in); got != want {
			t.Fatalf("redactDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPreviewTruncates(t *testing.T) {
	if got := preview("short  message\nhere", 48); got != "short message here" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := preview(strings.Repeat("a", 60), 10); len([]rune(got)) != 10 {
		t.Fatalf("expected 10 runes, got %q", got)
	}
}
