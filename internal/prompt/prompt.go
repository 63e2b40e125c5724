// Package prompt assembles the system prompt for a generation request from
// the static template table.
package prompt

import (
	"fmt"
	"strings"

	"github.com/fragmentworks/fragment-gateway/internal/domain"
	"github.com/fragmentworks/fragment-gateway/internal/registry"
)

const preamble = "You are a skilled software engineer. You do not make mistakes. " +
	"Generate a fragment. You can install additional dependencies. " +
	"Do not touch project dependencies files like package.json, package-lock.json, requirements.txt, etc. " +
	"Do not wrap code in backticks. Always break the lines correctly."

// Assemble is deterministic and pure. For the auto variant the prompt
// enumerates every available template so the model performs the selection at
// generation time; the assembler never picks one itself.
func Assemble(templateID string) (string, error) {
	if templateID == registry.TemplateAuto {
		return preamble + " You can use one of the following templates:\n" +
			describe(registry.Templates()), nil
	}

	tpl, err := registry.TemplateByID(templateID)
	if err != nil {
		return "", fmt.Errorf("assemble prompt: %w", err)
	}

	return preamble + " You can use one of the following templates:\n" +
		describe([]registry.Template{tpl}), nil
}

func describe(templates []registry.Template) string {
	var b strings.Builder
	for i, t := range templates {
		port := "none"
		if t.Port != nil {
			port = fmt.Sprintf("%d", *t.Port)
		}
		fmt.Fprintf(&b, "%d. %s: \"%s\". File: %s. Dependencies installed: %s. Port: %s.\n",
			i+1, t.ID, t.Instructions, t.File, strings.Join(t.Libraries, ", "), port)
	}
	return b.String()
}

// Validate rejects unknown template ids before any work happens.
func Validate(templateID string) error {
	if !registry.ValidTemplate(templateID) {
		return domain.ErrUnknownTemplate
	}
	return nil
}
