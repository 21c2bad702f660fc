package store

// price is USD per million input and output tokens
type price struct {
	input  float64
	output float64
}

var defaultPrice = price{3.0, 15.0}

var pricing = map[string]price{
	"claude-sonnet-4-5-20250929":   {3.0, 15.0},
	"claude-haiku-4-5-20251001":    {0.80, 4.0},
	"gpt-4o":                       {2.50, 10.0},
	"gpt-4o-mini":                  {0.15, 0.60},
	"o3-mini":                      {1.10, 4.40},
	"deepseek-chat":                {0.27, 1.10},
	"deepseek-reasoner":            {0.55, 2.19},
	"gemini-2.0-flash":             {0.10, 0.40},
	"gemini-2.5-pro-preview-06-05": {1.25, 10.0},
	"llama-3.3-70b-versatile":      {0.59, 0.79},
	"mixtral-8x7b-32768":           {0.24, 0.24},
}

// EstimateCost returns the USD cost of a call. Unknown models use the Sonnet price.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		p = defaultPrice
	}
	return (float64(inputTokens)*p.input + float64(outputTokens)*p.output) / 1_000_000
}
