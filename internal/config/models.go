package config

// defaultInventory builds a provider/model table from whichever credentials
// are configured. It lets the router start with nothing but an API key; any
// deployment that cares about pricing or latency figures should pin its own
// providers.inventory in llmrouter.yaml.
//
// Costs are USD per 1000 tokens. Latency figures are static planning
// numbers; live latency is learned by the reliability tracker.
func defaultInventory(p *ProvidersConfig) []ProviderSpec {
	var inv []ProviderSpec

	if p.OpenAI.APIKey != "" {
		inv = append(inv, ProviderSpec{
			Name:   "openai",
			Weight: 1.0,
			Models: []ModelSpec{
				{
					Name:            "gpt-4.1",
					Tier:            "premium",
					Capabilities:    []string{"reasoning", "coding", "long_context", "vision", "tools"},
					CostPer1KInput:  0.002,
					CostPer1KOutput: 0.008,
					LatencyP50Ms:    850,
					LatencyP95Ms:    2600,
					ContextWindow:   1047576,
				},
				{
					Name:            "gpt-4.1-mini",
					Tier:            "standard",
					Capabilities:    []string{"coding", "long_context", "vision", "tools"},
					CostPer1KInput:  0.0004,
					CostPer1KOutput: 0.0016,
					LatencyP50Ms:    500,
					LatencyP95Ms:    1500,
					ContextWindow:   1047576,
				},
				{
					Name:            "gpt-4o-mini",
					Tier:            "economy",
					Capabilities:    []string{"coding", "vision", "tools"},
					CostPer1KInput:  0.00015,
					CostPer1KOutput: 0.0006,
					LatencyP50Ms:    450,
					LatencyP95Ms:    1300,
					ContextWindow:   128000,
				},
			},
		})
	}

	if p.Anthropic.APIKey != "" {
		inv = append(inv, ProviderSpec{
			Name:   "anthropic",
			Weight: 1.0,
			Models: []ModelSpec{
				{
					Name:            "claude-3-7-sonnet",
					Tier:            "premium",
					Capabilities:    []string{"reasoning", "coding", "long_context", "vision", "tools"},
					CostPer1KInput:  0.003,
					CostPer1KOutput: 0.015,
					LatencyP50Ms:    1100,
					LatencyP95Ms:    3200,
					ContextWindow:   200000,
				},
				{
					Name:            "claude-3-5-sonnet",
					Tier:            "standard",
					Capabilities:    []string{"coding", "long_context", "vision", "tools"},
					CostPer1KInput:  0.003,
					CostPer1KOutput: 0.015,
					LatencyP50Ms:    1000,
					LatencyP95Ms:    2900,
					ContextWindow:   200000,
				},
				{
					Name:            "claude-3-5-haiku",
					Tier:            "economy",
					Capabilities:    []string{"coding", "tools"},
					CostPer1KInput:  0.0008,
					CostPer1KOutput: 0.004,
					LatencyP50Ms:    500,
					LatencyP95Ms:    1600,
					ContextWindow:   200000,
				},
			},
		})
	}

	if p.Gemini.APIKey != "" {
		inv = append(inv, ProviderSpec{
			Name:   "gemini",
			Weight: 1.0,
			Models: []ModelSpec{
				{
					Name:            "gemini-2.5-pro",
					Tier:            "premium",
					Capabilities:    []string{"reasoning", "coding", "long_context", "vision", "tools"},
					CostPer1KInput:  0.00125,
					CostPer1KOutput: 0.01,
					LatencyP50Ms:    1200,
					LatencyP95Ms:    3500,
					ContextWindow:   1048576,
				},
				{
					Name:            "gemini-2.0-flash",
					Tier:            "standard",
					Capabilities:    []string{"coding", "long_context", "vision", "tools"},
					CostPer1KInput:  0.0001,
					CostPer1KOutput: 0.0004,
					LatencyP50Ms:    400,
					LatencyP95Ms:    1200,
					ContextWindow:   1048576,
				},
				{
					Name:            "gemini-2.0-flash-lite",
					Tier:            "economy",
					Capabilities:    []string{"long_context", "tools"},
					CostPer1KInput:  0.000075,
					CostPer1KOutput: 0.0003,
					LatencyP50Ms:    300,
					LatencyP95Ms:    900,
					ContextWindow:   1048576,
				},
			},
		})
	}

	for _, compat := range []struct {
		name  string
		creds Credentials
		model ModelSpec
	}{
		{
			name:  "groq",
			creds: p.Groq,
			model: ModelSpec{
				Name:            "llama-3.3-70b-versatile",
				Tier:            "standard",
				Capabilities:    []string{"coding", "tools"},
				CostPer1KInput:  0.00059,
				CostPer1KOutput: 0.00079,
				LatencyP50Ms:    250,
				LatencyP95Ms:    800,
				ContextWindow:   131072,
			},
		},
		{
			name:  "xai",
			creds: p.XAI,
			model: ModelSpec{
				Name:            "grok-3-mini",
				Tier:            "standard",
				Capabilities:    []string{"reasoning", "coding", "tools"},
				CostPer1KInput:  0.0003,
				CostPer1KOutput: 0.0005,
				LatencyP50Ms:    700,
				LatencyP95Ms:    2200,
				ContextWindow:   131072,
			},
		},
		{
			name:  "deepseek",
			creds: p.DeepSeek,
			model: ModelSpec{
				Name:            "deepseek-chat",
				Tier:            "economy",
				Capabilities:    []string{"reasoning", "coding"},
				CostPer1KInput:  0.00027,
				CostPer1KOutput: 0.0011,
				LatencyP50Ms:    900,
				LatencyP95Ms:    3000,
				ContextWindow:   65536,
			},
		},
		{
			name:  "together",
			creds: p.Together,
			model: ModelSpec{
				Name:            "meta-llama/Llama-3.3-70B-Instruct-Turbo",
				Tier:            "economy",
				Capabilities:    []string{"coding"},
				CostPer1KInput:  0.00088,
				CostPer1KOutput: 0.00088,
				LatencyP50Ms:    600,
				LatencyP95Ms:    1800,
				ContextWindow:   131072,
			},
		},
	} {
		if compat.creds.APIKey == "" {
			continue
		}
		inv = append(inv, ProviderSpec{
			Name:   compat.name,
			Weight: 1.0,
			Models: []ModelSpec{compat.model},
		})
	}

	// Ollama authenticates by reachability, not by key.
	if p.Ollama.BaseURL != "" {
		inv = append(inv, ProviderSpec{
			Name:   "ollama",
			Weight: 1.0,
			Models: []ModelSpec{
				{
					Name:          "llama3.1:8b",
					Tier:          "economy",
					Capabilities:  []string{"coding"},
					LatencyP50Ms:  1500,
					LatencyP95Ms:  6000,
					ContextWindow: 131072,
				},
			},
		})
	}

	return inv
}
