package agent

import "github.com/kingrea/foundry/internal/task"

// Built-in task types. TypeMaintenance backs the recurring health beat that
// the orchestrator feeds through the normal queue.
const (
	TypeCoding      task.Type = "coding"
	TypeDesign      task.Type = "design"
	TypeMarketing   task.Type = "marketing"
	TypeMaintenance task.Type = "maintenance"
)

// Defaults registers the built-in agent descriptors against the given
// default model and seals the registry.
func Defaults(defaultModel string) *Registry {
	r := NewRegistry()
	r.MustRegister(Descriptor{
		Type:  TypeCoding,
		Name:  "coding-agent",
		Model: defaultModel,
		SystemPrompt: "You are a senior software engineer. Produce working, " +
			"idiomatic code with brief rationale. Include tests when asked.",
		Capabilities: []Capability{"code_generation", "code_review", "bug_fixing"},
	})
	r.MustRegister(Descriptor{
		Type:  TypeDesign,
		Name:  "design-agent",
		Model: defaultModel,
		SystemPrompt: "You are a product designer. Produce clear design " +
			"proposals: layout, flows, and rationale.",
		Capabilities: []Capability{"ui_design", "ux_review", "branding"},
	})
	r.MustRegister(Descriptor{
		Type:  TypeMarketing,
		Name:  "marketing-agent",
		Model: defaultModel,
		SystemPrompt: "You are a marketing copywriter. Produce concise, " +
			"audience-appropriate copy.",
		Capabilities: []Capability{"copywriting", "campaign_planning", "seo"},
	})
	r.MustRegister(Descriptor{
		Type:         TypeMaintenance,
		Name:         "maintenance-agent",
		Model:        defaultModel,
		SystemPrompt: "Reply with the single word OK.",
		Capabilities: []Capability{"health_check"},
	})
	r.Seal()
	return r
}
