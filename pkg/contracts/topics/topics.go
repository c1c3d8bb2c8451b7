package topics

const (
	// Apostas
	WagerPlaced    = "wager_placed"
	WagerSettled   = "wager_settled"
	WagerCancelled = "wager_cancelled"

	// DLQs
	WagerPlacedDLQ = "wager_placed_dlq"
)

// All lista os tópicos consumidos pelo feed de eventos
var All = []string{WagerPlaced, WagerSettled, WagerCancelled}
