package llm

// price is USD per million tokens.
type price struct {
	in, out float64
}

// prices covers the models the provider presets use. Any other model
// estimates at zero, and the cost command marks it as unpriced.
var prices = map[string]price{
	"claude-sonnet-4-5-20250929": {in: 3.00, out: 15.00},
	"gpt-4o-mini":                {in: 0.15, out: 0.60},
	"gemini-2.0-flash":           {in: 0.10, out: 0.40},
}

// Priced reports whether model has price data.
func Priced(model string) bool {
	_, ok := prices[model]
	return ok
}

// EstimateCost prices a token count for model in USD.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.in + float64(outputTokens)/1e6*p.out
}

// EstimateUsageCost prices the usage accumulated over a refresh run.
func EstimateUsageCost(model string, u Usage) float64 {
	return EstimateCost(model, u.InputTokens, u.OutputTokens)
}

// EstimateTokens approximates the token count of a prompt at four
// characters per token. Non-empty text is at least one token.
func EstimateTokens(text string) int {
	if n := len(text) / 4; n > 0 || text == "" {
		return n
	}
	return 1
}
