package breaker

// ModelPrice is a per-million-token price pair for one model tier.
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// PriceTable maps a model tier name to its price. internal/prompt assigns
// agents the "opus" and "sonnet" tiers; "haiku" is priced but not assigned
// by internal/prompt.
type PriceTable map[string]ModelPrice

// DefaultPriceTable is the built-in table, overridable per SPEC_FULL.md
// §4.5.1 from .qralph/config.yaml. Figures are a fixed, conservative
// approximation of the three tiers' public per-Mtok pricing at the time
// this table was written; operators who need exact figures override them.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		"opus":   {InputPerMTok: 15.00, OutputPerMTok: 75.00},
		"sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	}
}

// Cost converts input/output token counts for tier into a dollar amount,
// falling back to the sonnet tier's price if tier is unrecognized.
func (t PriceTable) Cost(tier string, inputTokens, outputTokens int) float64 {
	price, ok := t[tier]
	if !ok {
		price = t["sonnet"]
	}
	return float64(inputTokens)/1_000_000*price.InputPerMTok +
		float64(outputTokens)/1_000_000*price.OutputPerMTok
}
