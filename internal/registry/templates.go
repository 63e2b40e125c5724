// Package registry holds the static lookup tables the gateway serves from:
// sandbox templates and the model catalog. Both are read-only. Loading them
// from code keeps the zero-configuration path working; deployments that need
// different catalogs swap this package's tables.
package registry

import "github.com/fragmentworks/fragment-gateway/internal/domain"

// TemplateAuto lets the model pick the template at generation time.
const TemplateAuto = "auto"

// Template describes one sandbox environment a fragment can target.
type Template struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Libraries    []string `json:"lib"`
	File         string   `json:"file"`
	Instructions string   `json:"instructions"`
	Port         *int     `json:"port"`
}

func intPtr(v int) *int { return &v }

var templates = []Template{
	{
		ID:           "code-interpreter-v1",
		Name:         "Python data analyst",
		Libraries:    []string{"python", "jupyter", "numpy", "pandas", "matplotlib", "seaborn", "plotly"},
		File:         "script.py",
		Instructions: "Runs code as a Jupyter notebook cell. Strong data analysis angle. Can use complex visualisation to explain results.",
		Port:         nil,
	},
	{
		ID:           "nextjs-developer",
		Name:         "Next.js developer",
		Libraries:    []string{"nextjs@14.2.5", "typescript", "@types/node", "@types/react", "@types/react-dom", "postcss", "tailwindcss", "shadcn"},
		File:         "pages/index.tsx",
		Instructions: "A Next.js 13+ app that reloads automatically. Using the pages router.",
		Port:         intPtr(3000),
	},
	{
		ID:           "vue-developer",
		Name:         "Vue.js developer",
		Libraries:    []string{"vue@latest", "nuxt@3.13.0", "tailwindcss"},
		File:         "app.vue",
		Instructions: "A Vue.js 3+ app that reloads automatically. Only when asked specifically for a Vue app.",
		Port:         intPtr(3000),
	},
	{
		ID:           "streamlit-developer",
		Name:         "Streamlit developer",
		Libraries:    []string{"streamlit", "pandas", "numpy", "matplotlib", "requests", "seaborn", "plotly"},
		File:         "app.py",
		Instructions: "A Streamlit app that reloads automatically.",
		Port:         intPtr(8501),
	},
	{
		ID:           "gradio-developer",
		Name:         "Gradio developer",
		Libraries:    []string{"gradio", "pandas", "numpy", "matplotlib", "requests", "seaborn", "plotly"},
		File:         "app.py",
		Instructions: "A Gradio app. Gradio Blocks/Interface should be called demo.",
		Port:         intPtr(7860),
	},
}

// Templates returns the static template table, excluding the auto variant.
func Templates() []Template {
	return templates
}

// Template looks up a template by id. The auto variant has no entry of its
// own; it is resolved by the prompt assembler.
func TemplateByID(id string) (Template, error) {
	for _, t := range templates {
		if t.ID == id {
			return t, nil
		}
	}
	return Template{}, domain.ErrUnknownTemplate
}

// ValidTemplate reports whether id names a known template or the auto
// variant.
func ValidTemplate(id string) bool {
	if id == TemplateAuto {
		return true
	}
	_, err := TemplateByID(id)
	return err == nil
}
