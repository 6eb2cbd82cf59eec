package attribution

import (
	"os"
	"testing"
)

func TestDetectAgentFromCortexAgentName(t *testing.T) {
	os.Setenv("CORTEX_AGENT_NAME", "my-agent")
	defer os.Unsetenv("CORTEX_AGENT_NAME")
	got := detectAgentUncached()
	if got != "my-agent" {
		t.Errorf("expected my-agent, got %s", got)
	}
}

func TestDetectAgentFromCortexUser(t *testing.T) {
	os.Unsetenv("CORTEX_AGENT_NAME")
	os.Setenv("CORTEX_USER", "mjbonanno")
	defer os.Unsetenv("CORTEX_USER")
	got := detectAgentUncached()
	if got != "mjbonanno" {
		t.Errorf("expected mjbonanno, got %s", got)
	}
}

func TestDetectAgentFallback(t *testing.T) {
	os.Unsetenv("CORTEX_AGENT_NAME")
	os.Unsetenv("CORTEX_USER")
	got := detectAgentUncached()
	// Should be either a real git name or "unknown" — not empty
	if got == "" {
		t.Error("expected non-empty result")
	}
}
