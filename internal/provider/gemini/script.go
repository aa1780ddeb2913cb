package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuongbtq/story-factory/internal/domain"
	"google.golang.org/genai"
)

const scriptInstruction = `You write scripts for short narrated videos.
Split the story into 4 to 8 scenes. For each scene give the narration to be
read aloud (one or two sentences) and a detailed prompt for a single
illustration of that moment.`

var sceneSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"scenes": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"narration":    {Type: genai.TypeString},
					"image_prompt": {Type: genai.TypeString},
				},
				Required: []string{"narration", "image_prompt"},
			},
		},
	},
	Required: []string{"scenes"},
}

// GenerateScript asks the script model for a JSON scene list
func (c *Client) GenerateScript(ctx context.Context, topic, style string) (domain.Scenes, error) {
	prompt := fmt.Sprintf("Topic: %s\nStyle: %s", topic, style)

	resp, err := c.client.Models.GenerateContent(ctx, c.scriptModel, userContent(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: scriptInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    sceneSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini script: %w", err)
	}

	var text strings.Builder
	for _, p := range firstParts(resp) {
		text.WriteString(p.Text)
	}
	return parseScript(text.String())
}

func parseScript(text string) (domain.Scenes, error) {
	var payload struct {
		Scenes domain.Scenes `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return nil, fmt.Errorf("gemini script: invalid JSON: %w", err)
	}
	if len(payload.Scenes) == 0 {
		return nil, domain.ErrNoScenes
	}

	// only the draft fields come from the model
	scenes := make(domain.Scenes, len(payload.Scenes))
	for i, s := range payload.Scenes {
		scenes[i] = domain.Scene{Narration: s.Narration, ImagePrompt: s.ImagePrompt}
	}
	return scenes, nil
}
