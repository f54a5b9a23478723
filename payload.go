package main

const (
	BotID       = "locust-test"
	MessageText = "load test from locust"
	MinID       = 1
	MaxID       = 1000
)

// LogPayload is the body of a write request.
type LogPayload struct {
	BotID  string `json:"botId"`
	ChatID int    `json:"chatId"`
	UserID int    `json:"userId"`
	Text   string `json:"text"`
}

// NewLogPayload draws fresh chat and user ids in [MinID, MaxID].
func NewLogPayload(rng Rng) LogPayload {
	return LogPayload{
		BotID:  BotID,
		ChatID: rng.IntBetween(MinID, MaxID),
		UserID: rng.IntBetween(MinID, MaxID),
		Text:   MessageText,
	}
}
