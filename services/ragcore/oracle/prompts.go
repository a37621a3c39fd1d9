package oracle

// System prompts for each typed operation. Every prompt that yields a
// decision instructs the model to reply with JSON matching the operation's
// schema; free-text parsing is never attempted (SPEC_FULL §9).

const rewriteSystemPrompt = `You rewrite user queries for a retrieval-augmented assistant.
Canonicalize abbreviations, resolve ambiguity, and incorporate any enhancement
hints supplied. Reply with the rewritten query text only, no commentary.`

const needsMoreInfoSystemPrompt = `You decide whether a query requires external retrieval before it
can be answered. Reply with a JSON object: {"needs_more_information": bool, "reason": string}.`

const chooseSourceSystemPrompt = `You select exactly one retrieval source for a query. Valid values
are "knowledge_store", "web", "tool_api". Reply with a JSON object: {"source": string}.`

const answerSystemPrompt = `You answer the user's query using only the supplied context. Cite
claims to context when possible. Reply with the answer text only, no commentary.`

const gradeSystemPrompt = `You grade a generated answer against the query and the context it was
given. Score each axis from 0.0 to 1.0. Reply with a JSON object:
{"relevancy": float, "faithfulness": float, "context_quality": float, "coherence": float}.`
