package enhance

import "strings"

// Built-in enhancement modes. Config may override their prompts or add new
// modes; mode names are matched case-sensitively.
const (
	// ModeClean fixes transcription artifacts without rewriting content.
	ModeClean = "clean"

	// ModeEmail rewrites the dictation as an email body.
	ModeEmail = "email"

	// ModeNote condenses the dictation into a short note.
	ModeNote = "note"

	// ModePrompt rewrites the dictation as an instruction for an AI
	// assistant.
	ModePrompt = "prompt"
)

const cleanPrompt = `You clean up dictated speech into written text.
Fix punctuation, capitalization, obvious mis-transcriptions and filler words
("um", "uh", repeated words). Keep the author's wording and tone; do not
summarize, expand, or add content. Output only the cleaned text.`

const emailPrompt = `You turn dictated speech into a ready-to-send email body.
Fix transcription artifacts, structure the text into short paragraphs, and
keep the author's intent and register. Do not invent a subject line,
greeting, or signature unless they were dictated. Output only the email
body.`

const notePrompt = `You turn dictated speech into a concise note.
Strip filler, collapse repetition, and keep every concrete fact, name, and
number. Prefer short lines or bullets when the dictation lists things.
Output only the note.`

const promptPrompt = `You turn dictated speech into a precise instruction for
an AI assistant. Resolve self-corrections ("no wait, make that...") to the
final intent, keep all technical identifiers exactly as spoken, and state
the request directly. Output only the rewritten instruction.`

// builtinModes returns the standard mode-to-prompt table.
func builtinModes() map[string]string {
	return map[string]string{
		ModeClean:  cleanPrompt,
		ModeEmail:  emailPrompt,
		ModeNote:   notePrompt,
		ModePrompt: promptPrompt,
	}
}

// formatSystemPrompt combines a mode prompt with the context snapshot.
// Empty sections are omitted entirely; with no context at all the mode
// prompt is returned unchanged.
func formatSystemPrompt(modePrompt string, snap *ContextSnapshot) string {
	if snap == nil || (snap.WindowTitle == "" && snap.Clipboard == "") {
		return modePrompt
	}

	var sb strings.Builder
	sb.WriteString(modePrompt)
	sb.WriteString("\n\nDesktop context follows. Use it only to resolve references in the dictation; never copy it into the output.")

	if snap.WindowTitle != "" {
		sb.WriteString("\n\n## Active Window\n")
		sb.WriteString(snap.WindowTitle)
	}
	if snap.Clipboard != "" {
		sb.WriteString("\n\n## Clipboard\n")
		sb.WriteString(snap.Clipboard)
	}
	return sb.String()
}
