package core

type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Models lists the chat models offered for selection.
var Models = []ModelInfo{
	{
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		Description: "Fast, efficient, and great for everyday tasks.",
	},
	{
		ID:          "gemini-3-pro-preview",
		Name:        "Gemini 3.0 Pro (Preview)",
		Description: "Advanced reasoning, coding, and complex problem solving.",
	},
}
