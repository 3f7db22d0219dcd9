package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestDocumentAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "documents.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read alert rules: %v", err)
	}

	var spec alertSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("parse alert rules: %v", err)
	}
	if len(spec.Groups) == 0 {
		t.Fatal("expected at least one alert group")
	}

	seen := map[string]bool{}
	for _, g := range spec.Groups {
		for _, r := range g.Rules {
			seen[r.Alert] = true
			if r.Expr == "" {
				t.Errorf("alert %s has no expression", r.Alert)
			}
			if !strings.Contains(r.Expr, "opale_") {
				t.Errorf("alert %s does not reference an application metric: %s", r.Alert, r.Expr)
			}
			if r.Labels["severity"] == "" {
				t.Errorf("alert %s missing severity label", r.Alert)
			}
			if r.Annotations["summary"] == "" {
				t.Errorf("alert %s missing summary annotation", r.Alert)
			}
		}
	}

	for _, want := range []string{"DocumentGenerationFailing", "PdfRenderSlow", "ReminderDispatchFailing"} {
		if !seen[want] {
			t.Errorf("expected alert %s to be defined", want)
		}
	}
}
