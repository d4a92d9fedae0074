package notes

import (
	"fmt"
	"strings"

	"github.com/nypoclary/lectura-backend/internal/llm"
	"github.com/nypoclary/lectura-backend/internal/types"
)

const systemPrompt = "You are an expert educator creating detailed lecture notes tailored to different learning styles."

const basePrompt = `You are a university lecturer rewriting a recorded lecture into a teaching document for a student who missed the class and must understand it fully.

Rules:
- Do not summarise or drop material. Rewrite the whole lecture in clear explanatory paragraphs.
- Write full sentences and paragraphs rather than bare bullet points.
- Explain every term and process from first principles, with a short definition and why it matters.
- Organise the document with section headers and subheaders that follow the order of the lecture.
- Keep side remarks, jokes and exam hints; they aid memory.
- Preserve tone cues such as humour or sarcasm when they change the meaning.

Tone: professional and easy to follow, the voice of a helpful professor.

Finish with a "Study Tip Summary" covering the key topics, common misunderstandings, definitions or formulas to memorise, and study strategies tied to this lecture's exam topics.`

var styleInstructions = map[types.LearningStyle]string{
	types.StyleVisual: `Additional instructions for a visual learner:
- Use vivid imagery and spatial language for concepts.
- Include diagrams as mermaid code blocks (graph, sequenceDiagram, gantt, classDiagram, stateDiagram-v2, pie or erDiagram).
- Suggest colour-coding and flashcards with visual cues.
- Describe relationships with visual metaphors.`,
	types.StyleAuditory: `Additional instructions for an auditory learner:
- Write so the notes read naturally aloud.
- Suggest mnemonics, rhymes or short verbal summaries.
- Encourage talking concepts through with a study partner.
- Avoid relying on tables or diagrams to carry meaning.`,
	types.StyleReadWrite: `Additional instructions for a reading/writing learner:
- Give comprehensive written explanations and organised lists.
- Include possible essay questions or writing prompts.
- Suggest rewriting concepts in the student's own words.
- Provide extensive definitions and written examples.`,
	types.StyleKinesthetic: `Additional instructions for a kinesthetic learner:
- Add hands-on activities and "try this" exercises throughout.
- Connect each concept to a real-world application.
- Suggest building models or physical representations.
- Recommend short active study breaks.`,
}

// BuildPrompt renders the note-generation request for one transcript segment.
func BuildPrompt(transcript string, style types.LearningStyle) llm.Request {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	if instr, ok := styleInstructions[style]; ok {
		b.WriteString(instr)
	} else {
		b.WriteString(styleInstructions[types.StyleReadWrite])
	}
	fmt.Fprintf(&b, "\n\nRewrite the following lecture transcript into a complete, self-contained document tailored for the %s.\n\nTranscript:\n%s\n",
		style.Title(), transcript)
	return llm.Request{System: systemPrompt, User: b.String()}
}
