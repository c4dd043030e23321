package tools

// Property describes one named tool parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Schema is the parameter schema of one tool declaration.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Declaration is a tool as advertised to the speech model: a name, a
// natural-language description the model uses to decide when to call it, and
// a typed parameter schema.
type Declaration struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Declarations lists the three tools the agent exposes.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name: string(NameRetrieveKnowledge),
			Description: "Search the Arabic knowledge base for factual information about " +
				"history, science, geography, and culture. Use for general factual questions. " +
				"Do not use for current events (use web_search) or weather (use get_weather).",
			Parameters: Schema{
				Type: "object",
				Properties: map[string]Property{
					"query": {Type: "string", Description: "The search query, in Arabic or English."},
				},
				Required: []string{"query"},
			},
		},
		{
			Name: string(NameGetWeather),
			Description: "Get current weather conditions for a city: temperature, humidity, " +
				"wind, and sky condition. English city names resolve most reliably, for example " +
				"Rabat, Casablanca, Beni Mellal.",
			Parameters: Schema{
				Type: "object",
				Properties: map[string]Property{
					"city": {Type: "string", Description: "City name, preferably in English."},
				},
				Required: []string{"city"},
			},
		},
		{
			Name: string(NameWebSearch),
			Description: "Search the web for recent news, current events, and other " +
				"up-to-date information the knowledge base cannot answer.",
			Parameters: Schema{
				Type: "object",
				Properties: map[string]Property{
					"query": {Type: "string", Description: "Search query, in any language."},
				},
				Required: []string{"query"},
			},
		},
	}
}
