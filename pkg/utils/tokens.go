package utils

// CharsPerToken is the rough character-to-token ratio used across the
// chunker and retriever. Actual tokenizer output varies by model; four
// characters per token is close enough for budgeting English prose.
const CharsPerToken = 4

// EstimateTokens approximates the token count of a text.
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// TokensToChars converts a token budget into a character budget.
func TokensToChars(tokens int) int {
	return tokens * CharsPerToken
}
