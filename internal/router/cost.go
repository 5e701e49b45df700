package router

// modelPrice is one model's USD pricing per million tokens, split by
// input/output; costTable holds it per provider:model pair. Mirrors the
// original implementation's models-metadata cost table at a level of
// detail that exercises the same call shape (estimateCostUSD) without
// depending on a live pricing feed —
// fetching one is out of scope for this gateway (see spec's Non-goals on
// provider-side rate-limit discovery, which the same remote-metadata
// concern falls under).
type modelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var costTable = map[string]modelPrice{
	"anthropic:claude-3-haiku-20240307":   {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"anthropic:claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"google:gemini-2.0-flash":             {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"google:gemini-1.5-pro":               {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	"openai:gpt-4o":                       {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"openai:gpt-4o-mini":                  {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"xai:grok-2":                          {InputPerMillion: 2.00, OutputPerMillion: 10.00},
}

// defaultPrice is used for any provider:model pair absent from costTable —
// local/free backends (Ollama, GitHub Copilot's flat subscription) fall
// through to this rather than a lookup error.
var defaultPrice = modelPrice{InputPerMillion: 0, OutputPerMillion: 0}

// estimateCostUSD ports calculate_cost_with_fallback: look up the exact
// provider:model pair, and if absent, charge nothing rather than guess.
func estimateCostUSD(provider, model string, promptTokens, completionTokens int) float64 {
	price, ok := costTable[provider+":"+model]
	if !ok {
		price = defaultPrice
	}
	return float64(promptTokens)/1_000_000*price.InputPerMillion +
		float64(completionTokens)/1_000_000*price.OutputPerMillion
}
