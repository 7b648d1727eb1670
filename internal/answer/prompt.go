package answer

import "fmt"

// systemPrompt keeps the model grounded in the retrieved material. The
// insufficiency instruction matters: a hallucinated answer is worse than an
// honest "the documents don't cover this".
const systemPrompt = `You are a study assistant. Answer the question using ONLY the provided context.
If the context does not contain enough information to answer, say so plainly.
Cite the source filenames you drew on. Be concise and accurate.`

// userPrompt combines the packed context and the question into one turn.
func userPrompt(context, question string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", context, question)
}
