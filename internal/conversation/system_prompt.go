package conversation

import "strings"

// DefaultBaselinePersona is prepended to every system instruction.
const DefaultBaselinePersona = "You are sales ai bot answer everything in small and you are going to handle the user on whatsapp"

// DefaultAssistantLabel is the sender name shown on outbound realtime events.
const DefaultAssistantLabel = "🤖 Gemini"

// BuildSystemInstruction joins the baseline persona with the operator's
// custom prompt, separated by a newline. An empty custom prompt adds nothing.
func BuildSystemInstruction(baseline, custom string) string {
	if strings.TrimSpace(custom) == "" {
		return baseline
	}
	return baseline + "\n" + custom
}
