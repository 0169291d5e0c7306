package chatopscommand

// Input is the job's variables.
type Input struct {
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
	Wait      *bool  `json:"wait,omitempty"`
}

type Output struct {
	InstanceID   string `json:"instanceId"`
	Status       string `json:"status"`
	ResponseText string `json:"responseText"`
	Terminal     bool   `json:"terminal"`
}
