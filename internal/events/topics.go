package events

// Topics published while converting a basket into order lines.
const (
	// TopicBeforeLineConversion fires once per submitted basket line, before
	// its stock check. The payload is the stock.CheckItem projection.
	TopicBeforeLineConversion = "basket.line.before_conversion"
	TopicOrderLinesBuilt      = "order.lines_built"
	TopicBasketAdjusted       = "basket.adjusted"
)

// DefaultTopics returns every topic the conversion workflow may publish.
func DefaultTopics() []string {
	return []string{
		TopicBeforeLineConversion,
		TopicOrderLinesBuilt,
		TopicBasketAdjusted,
	}
}
