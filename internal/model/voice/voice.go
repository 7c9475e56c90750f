package voice

// Voice 描述一个可用于合成的声音条目。
type Voice struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Language string   `json:"language"`
	Gender   string   `json:"gender,omitempty"`
	Provider string   `json:"provider"`
	Aliases  []string `json:"aliases,omitempty"`
}

// Seed 提供默认声音目录；别名面向前端，ID 面向供应商。
func Seed() []Voice {
	return []Voice{
		{
			ID:       "es-CO-SalomeNeural",
			Name:     "Salomé",
			Language: "es-CO",
			Gender:   "female",
			Provider: "azure",
			Aliases:  []string{"salome", "es-female-warm"},
		},
		{
			ID:       "es-CO-GonzaloNeural",
			Name:     "Gonzalo",
			Language: "es-CO",
			Gender:   "male",
			Provider: "azure",
			Aliases:  []string{"gonzalo", "es-male-neutral"},
		},
		{
			ID:       "es-US-Neural2-A",
			Name:     "Neural2 A",
			Language: "es-US",
			Gender:   "female",
			Provider: "google",
			Aliases:  []string{"es-us-female"},
		},
		{
			ID:       "en-US-Neural2-C",
			Name:     "Neural2 C",
			Language: "en-US",
			Gender:   "female",
			Provider: "google",
			Aliases:  []string{"en-us-female"},
		},
		{
			ID:       "en-US-GuyNeural",
			Name:     "Guy",
			Language: "en-US",
			Gender:   "male",
			Provider: "azure",
			Aliases:  []string{"guy", "en-male-neutral"},
		},
	}
}
