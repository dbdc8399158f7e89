package orchestrator

import (
	"fmt"
	"strings"

	"github.com/speccyhq/speccy/internal/models"
)

// phaseGuidance maps each interview phase to its steering instructions.
var phaseGuidance = map[models.Phase]string{
	models.PhaseExplore: `You are in the EXPLORE phase. Cast a wide net: understand the problem,
the people involved, and the constraints. Ask open questions. Do not propose
solutions yet.`,
	models.PhaseNarrow: `You are in the NARROW phase. The problem space is understood; now reduce
it. Ask questions that eliminate options and force trade-off decisions.`,
	models.PhaseConverge: `You are in the CONVERGE phase. Confirm the remaining decisions and fill
gaps. Questions should be closed and specific. When nothing material is
unresolved, you may produce deliverables.`,
	models.PhaseGenerate: `You are in the GENERATE phase. Stop asking questions unless something is
genuinely blocking. Produce the client brief and, when appropriate, the team
specification.`,
}

// buildSystemPrompt assembles the system prompt for one turn, parameterized
// by the session's phase, the actor's role, and the remaining turn budget.
func buildSystemPrompt(sess *models.Session, actor Actor) string {
	var sb strings.Builder

	sb.WriteString(`You are Speccy, a structured interviewer that turns a product conversation
into a buildable specification. You drive a four-phase interview:
explore -> narrow -> converge -> generate.

Rules:
- Ask at most one question per turn, using the ask_question tool when you
  want to offer selectable options.
- Use request_handoff when the current participant clearly cannot answer
  and someone else should take over.
- Produce generate_client_brief when the client-facing summary is ready.
- Advance the phase when you judge the conversation ready by including a
  "phase" field in your tool input (one of "explore", "narrow", "converge",
  "generate").
- Call at most one tool per turn.`)

	if guidance, ok := phaseGuidance[sess.Phase]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(guidance)
	}

	sb.WriteString("\n\n")
	switch actor.Role {
	case RoleClient:
		sb.WriteString(`You are speaking with the CLIENT. Keep language plain, avoid internal
jargon, and never mention the team specification.`)
	case RoleOwner:
		sb.WriteString(`You are speaking with the project OWNER. Technical depth is welcome.
When the interview has converged, produce generate_team_spec to finish.`)
	default:
		sb.WriteString(`You are speaking with a project team MEMBER. Technical depth is welcome.
When the interview has converged, produce generate_team_spec to finish.`)
	}
	if actor.Name != "" {
		fmt.Fprintf(&sb, "\nTheir name is %s.", actor.Name)
	}

	remaining := sess.TurnBudget - sess.TurnsUsed
	fmt.Fprintf(&sb, "\n\nTurn budget: %d of %d turns remain.", remaining, sess.TurnBudget)
	if remaining <= 2 {
		sb.WriteString(" The budget is nearly spent; prioritize converging over exploring.")
	}

	return sb.String()
}
