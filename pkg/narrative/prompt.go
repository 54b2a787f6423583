package narrative

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/chat"
)

// NarratorPrompt is the system prompt for the theater narrator.
const NarratorPrompt = `You are the narrator of Quantum Theater, a tabletop story told with physical game pieces on a board. Players move pieces and you describe how the story responds. Speak in second person to the audience, in present tense.

Be concise and vivid. Keep most responses to 2-3 sentences so they can be read aloud. Never mention markers, cameras, zones by number, or anything about how the board is sensed. Never break the fourth wall.

Wrap everything that should be read aloud in <speech></speech> tags. Anything outside those tags is not spoken.`

// FallbackNarration is spoken when the narrator cannot be reached.
const FallbackNarration = "The quantum field fluctuates, making communication temporarily unclear. Please try again as the wave function stabilizes."

const defaultHistoryLimit = 6

// PromptBuilder turns a NarrativeRequest into chat messages for the narrator.
type PromptBuilder struct {
	req          NarrativeRequest
	historyLimit int
}

// NewPromptBuilder creates a builder with default settings.
func NewPromptBuilder(req NarrativeRequest) *PromptBuilder {
	return &PromptBuilder{req: req, historyLimit: defaultHistoryLimit}
}

// WithHistoryLimit sets how many past events are included.
func (b *PromptBuilder) WithHistoryLimit(limit int) *PromptBuilder {
	b.historyLimit = limit
	return b
}

// Build returns the system prompt, the story context, and the instruction
// for this event.
func (b *PromptBuilder) Build() []chat.ChatMessage {
	return []chat.ChatMessage{
		chat.System(NarratorPrompt),
		chat.System(b.context()),
		chat.User(b.instruction()),
	}
}

func (b *PromptBuilder) context() string {
	st := b.req.State
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current act: %s.", st.Act.Title())
	if len(st.Flags) > 0 {
		fmt.Fprintf(&sb, "\nStory facts so far: %s.", strings.Join(humanize(st.Flags), ", "))
	}
	if h := st.History; len(h) > 0 {
		start := max(0, len(h)-b.historyLimit)
		sb.WriteString("\nRecent events:")
		for _, line := range h[start:] {
			sb.WriteString("\n- " + line)
		}
	}
	return sb.String()
}

func (b *PromptBuilder) instruction() string {
	ev := describe(b.req.Event, b.req.Role)
	switch b.req.Kind {
	case RequestTransition:
		if b.req.PreviousAct != b.req.State.Act {
			return fmt.Sprintf("%s The story leaves the %s act and enters the %s act. Narrate this turning point.",
				ev, b.req.PreviousAct.Title(), b.req.State.Act.Title())
		}
		return fmt.Sprintf("%s The story advances. Narrate what this reveals.", ev)
	case RequestTerminal:
		return fmt.Sprintf("%s The story has already ended. Acknowledge the gesture briefly as an epilogue without changing the outcome.", ev)
	case RequestReplay:
		return fmt.Sprintf("%s Retell this moment for an audience that may have missed it.", ev)
	default:
		return fmt.Sprintf("%s Nothing in the story changes. Describe the moment of stillness briefly.", ev)
	}
}

func describe(ev board.BoardEvent, role string) string {
	piece := "A piece"
	if role != "" {
		piece = "The " + strings.ReplaceAll(role, "_", " ")
	}
	switch ev.Kind {
	case board.PiecePlaced:
		return fmt.Sprintf("%s appears at the %s.", piece, ev.Zone)
	case board.PieceRemoved:
		return fmt.Sprintf("%s vanishes from the %s.", piece, ev.Zone)
	case board.PieceMoved:
		return fmt.Sprintf("%s travels from the %s to the %s.", piece, ev.FromZone, ev.ToZone)
	default:
		return fmt.Sprintf("%s stirs.", piece)
	}
}

func humanize(flags []string) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = strings.ReplaceAll(f, "_", " ")
	}
	return out
}
