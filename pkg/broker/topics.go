package broker

// Topic names are part of the external contract.
const (
	// TopicAllUpdates receives every change event, keyed by symbol.
	TopicAllUpdates = "crypto-price-updates"
	// TopicSignificantChanges receives the subset where isSignificant is true.
	TopicSignificantChanges = "significant-price-changes"
)

// Topics returns every topic the pipeline uses, in declaration order.
func Topics() []string {
	return []string{TopicAllUpdates, TopicSignificantChanges}
}
