package prompt

import (
	"strings"
	"testing"

	"github.com/fragmentworks/fragment-gateway/internal/registry"
)

func TestAssemble_Auto_EnumeratesAllTemplates(t *testing.T) {
	p, err := Assemble(registry.TemplateAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, tpl := range registry.Templates() {
		if !strings.Contains(p, tpl.ID) {
			t.Errorf("auto prompt missing template %q", tpl.ID)
		}
	}
}

func TestAssemble_SpecificTemplate(t *testing.T) {
	p, err := Assemble("streamlit-developer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(p, "streamlit-developer") {
		t.Error("prompt should mention the selected template")
	}
	if strings.Contains(p, "nextjs-developer") {
		t.Error("prompt for a specific template should not mention others")
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	a, _ := Assemble(registry.TemplateAuto)
	b, _ := Assemble(registry.TemplateAuto)
	if a != b {
		t.Error("Assemble must be deterministic")
	}
}

func TestAssemble_UnknownTemplate(t *testing.T) {
	if _, err := Assemble("nope"); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(registry.TemplateAuto); err != nil {
		t.Errorf("auto should validate: %v", err)
	}
	if err := Validate("gradio-developer"); err != nil {
		t.Errorf("gradio-developer should validate: %v", err)
	}
	if err := Validate("nope"); err == nil {
		t.Error("expected error for unknown template")
	}
}
