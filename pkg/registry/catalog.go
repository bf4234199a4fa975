package registry

import "github.com/pario-ai/chatgate/pkg/models"

// conversationalTemplate wraps raw input the way chat-tuned models expect.
// The model tends to replay the "ASSISTANT:" delimiter in its output, which
// is why conversational entries also carry it as their echo marker.
const (
	conversationalTemplate = "USER: " + models.MessagePlaceholder + "\nASSISTANT:"
	conversationalMarker   = "ASSISTANT:"
)

// DefaultParameters fill in anything a configured model leaves unset.
var DefaultParameters = models.Parameters{
	MaxNewTokens:      250,
	Temperature:       0.7,
	DoSample:          true,
	TopP:              0.9,
	RepetitionPenalty: 1.1,
}

// Builtin is the catalog shipped with the binary. Config-declared models are
// merged over it by ID.
var Builtin = []models.ModelDescriptor{
	{
		ID: "krishna-saarthi-counselor", Name: "Krishna Saarthi Counselor",
		Path: "mistralai/Mistral-7B-Instruct-v0.2", Specialty: "spiritual-guidance",
		Template: conversationalTemplate, EchoMarker: conversationalMarker,
		Welcome:  "Namaste. I am Krishna Saarthi, here to walk beside you. What weighs on your mind today?",
		Fallback: "The path is quiet for a moment. Take a slow breath, return to the present, and ask me again shortly.",
		Aliases:  []string{"saarthi", "counselor"},
		Parameters: models.Parameters{
			MaxNewTokens: 300, Temperature: 0.7, DoSample: true, TopP: 0.9, RepetitionPenalty: 1.15,
		},
	},
	{
		ID: "mindful-wellness-coach", Name: "Mindful Wellness Coach",
		Path: "HuggingFaceH4/zephyr-7b-beta", Specialty: "wellness",
		Template: conversationalTemplate, EchoMarker: conversationalMarker,
		Welcome:  "Hi! I'm your wellness coach. Tell me how you're feeling and we'll find a small step forward together.",
		Fallback: "I can't reach my notes right now. Meanwhile, try a glass of water and a two-minute stretch; I'll be back soon.",
		Aliases:  []string{"wellness"},
		Parameters: models.Parameters{
			MaxNewTokens: 250, Temperature: 0.6, DoSample: true, TopP: 0.9, RepetitionPenalty: 1.1,
		},
	},
	{
		ID: "productivity-mentor", Name: "Productivity Mentor",
		Path: "tiiuae/falcon-7b-instruct", Specialty: "productivity",
		Template: conversationalTemplate, EchoMarker: conversationalMarker,
		Welcome:  "Ready to get things done. What goal are we working on?",
		Fallback: "I'm temporarily unavailable. Pick the single most important task on your list and give it 25 focused minutes.",
		Aliases:  []string{"mentor"},
		Parameters: models.Parameters{
			MaxNewTokens: 200, Temperature: 0.5, DoSample: true, TopP: 0.85, RepetitionPenalty: 1.1,
		},
	},
	{
		ID: "creative-writer", Name: "Creative Writer",
		Path: "gpt2-large", Specialty: "creative-writing",
		Welcome:  "Give me an opening line and I'll carry the story.",
		Fallback: "The muse stepped out. Jot down three words that describe your scene and we'll pick it up from there.",
		Parameters: models.Parameters{
			MaxNewTokens: 200, Temperature: 0.9, DoSample: true, TopP: 0.95, RepetitionPenalty: 1.2,
		},
	},
	{
		ID: "general-assistant", Name: "General Assistant",
		Path: "google/flan-t5-large", Specialty: "general",
		Welcome:  "Hello! Ask me anything.",
		Fallback: "I'm having trouble answering right now. Please try again in a moment.",
		Aliases:  []string{"general", "default"},
		Parameters: models.Parameters{
			MaxNewTokens: 150, Temperature: 0.3, DoSample: false, TopP: 1.0, RepetitionPenalty: 1.0,
		},
	},
}
