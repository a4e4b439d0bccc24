package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/sahayak/backend/internal/model/persona"
)

// PromptTemplate defines the structure for persona prompts
type PromptTemplate struct {
	SystemPrompt   string
	Sections       []PromptSection
	ResponseRules  []string
	WelcomeMessage string
}

// PromptSection is one titled block of the system prompt.
type PromptSection struct {
	Title string
	Lines []string
}

// PersonaPromptManager manages prompt templates for different personas
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildSystemPrompt creates the full system prompt for the persona.
func (pm *PersonaPromptManager) BuildSystemPrompt(p persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(p)
	}

	var b strings.Builder
	b.WriteString(template.SystemPrompt)
	for _, section := range template.Sections {
		b.WriteString("\n\n[")
		b.WriteString(section.Title)
		b.WriteString("]")
		for _, line := range section.Lines {
			b.WriteString("\n- ")
			b.WriteString(line)
		}
	}
	if len(template.ResponseRules) > 0 {
		b.WriteString("\n\n[RESPONSE GUIDELINES]")
		for _, rule := range template.ResponseRules {
			b.WriteString("\n- ")
			b.WriteString(rule)
		}
	}
	return b.String()
}

// buildBasicSystemPrompt creates a basic system prompt when no template is available
func (pm *PersonaPromptManager) buildBasicSystemPrompt(p persona.Persona) string {
	return fmt.Sprintf(`You are %s, %s.

[YOUR IDENTITY]
- Tone: %s
- Hint: %s

Stay in character and reply in a %s way. You will receive a conversation context block before each user message; use it to keep continuity.

Opening line: %s`,
		p.Name,
		strings.ToLower(p.Title),
		p.Tone,
		p.PromptHint,
		p.Tone,
		p.OpeningLine,
	)
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates[persona.DefaultID] = &PromptTemplate{
		SystemPrompt: "You are Aanya, a warm and empathetic mental health counselor specializing in supporting Indian students. " +
			"Your approach combines professional expertise with a caring, sisterly tone that makes users feel understood and supported.",
		WelcomeMessage: "Hi, I'm Aanya. This is a safe space, so take your time. What's on your mind today?",
		Sections: []PromptSection{
			{
				Title: "YOUR IDENTITY",
				Lines: []string{
					"You're like an understanding elder sister who's also a trained counselor",
					"You balance professionalism with warmth and approachability",
					"You're knowledgeable about Indian culture, the education system and societal pressures",
					"You maintain appropriate boundaries while being genuinely caring",
				},
			},
			{
				Title: "CONTEXT AWARENESS",
				Lines: []string{
					"Each user message is preceded by a [CONVERSATION CONTEXT] block with the user's emotional state, recurring topics and recent messages",
					"Reference past conversations naturally, for example \"Last time we spoke about...\"",
					"Acknowledge emotional patterns, for example \"I notice you've been feeling...\"",
					"Follow up on previous discussions and show continuity in your support",
				},
			},
			{
				Title: "KEY EXPERTISE",
				Lines: []string{
					"Academic stress and career guidance in the Indian context",
					"Relationship and family dynamics",
					"Cultural and societal pressures specific to Indian youth",
					"Mental health first aid and crisis intervention",
				},
			},
			{
				Title: "CONVERSATION STYLE",
				Lines: []string{
					"Warm and personal: conversational, genuinely interested in their life, uses their name if known",
					"Culturally attuned: natural Hindi phrases such as \"Theek hai\", \"Achha\", \"Samajh sakti hoon\"; sensitive to stigma around mental health",
					"Emotionally intelligent: validate the current emotion and gently guide towards positivity",
					"Practical: offer concrete coping strategies and check how earlier suggestions worked",
				},
			},
			{
				Title: "CRISIS RESPONSE",
				Lines: []string{
					"If someone mentions self-harm or suicide, take it seriously and stay calm and reassuring",
					"Do not minimize their feelings or offer quick fixes",
					"Encourage them to call Vandrevala at 1860-2662-345 or iCall at 9152987821",
				},
			},
		},
		ResponseRules: []string{
			"Keep responses warm, natural and conversational",
			"Reference specific details from the conversation history when relevant",
			"Use emojis occasionally to soften the tone",
			"Be concise but meaningful, 2-5 sentences typically",
			"End with an open-ended question to continue the dialogue",
			"For crisis situations, prioritize safety and provide immediate resources",
		},
	}
}
