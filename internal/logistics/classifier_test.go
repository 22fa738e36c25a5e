package logistics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/friendsincode/fieldops/internal/models"
)

func TestDefaultClassify(t *testing.T) {
	c := Default()

	tests := []struct {
		address string
		want    models.LogisticsGroup
	}{
		{"Rua das Flores, 120 - Centro", models.GroupA},
		{"", models.GroupA},
		{"Sítio Boa Esperança, Zona Rural", models.GroupC},
		{"Rodovia SP-340, km 12", models.GroupC},
		{"Rua Kmart 10", models.GroupA},
		{"Av. Brasil 900, Jardim América", models.GroupB},
		{"Condomínio Solar, casa 4", models.GroupB},
		{"Chácara Recanto, Estrada Velha", models.GroupC},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			if got := c.Classify(tt.address); got != tt.want {
				t.Fatalf("Classify(%q) = %s, want %s", tt.address, got, tt.want)
			}
		})
	}
}

func TestParseCustomRules(t *testing.T) {
	c, err := Parse([]byte(`
default: b
groups:
  - group: c
    keywords: [island]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := c.Classify("12 Island Road"); got != models.GroupC {
		t.Fatalf("expected C, got %s", got)
	}
	if got := c.Classify("Main Street"); got != models.GroupB {
		t.Fatalf("expected default B, got %s", got)
	}
}

func TestParseRejectsUnknownGroup(t *testing.T) {
	if _, err := Parse([]byte("groups:\n  - group: D\n    keywords: [x]\n")); err == nil {
		t.Fatal("expected error for group D")
	}
	if _, err := Parse([]byte("default: Z\n")); err == nil {
		t.Fatal("expected error for default Z")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("groups:\n  - group: B\n    keywords: [harbour]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := c.Classify("3 Harbour Lane"); got != models.GroupB {
		t.Fatalf("expected B, got %s", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
