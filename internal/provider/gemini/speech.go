package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cuongbtq/story-factory/internal/provider"
	"google.golang.org/genai"
)

// Synthesize voices text with the configured voice and locale. The model
// returns raw 16-bit PCM, which is wrapped into a WAV container.
func (c *Client) Synthesize(ctx context.Context, text string) (provider.Media, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.speechModel, userContent(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: c.languageCode,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.voice},
			},
		},
	})
	if err != nil {
		return provider.Media{}, fmt.Errorf("gemini speech: %w", err)
	}
	return speechFromResponse(resp)
}

func speechFromResponse(resp *genai.GenerateContentResponse) (provider.Media, error) {
	for _, p := range firstParts(resp) {
		if p.InlineData == nil || len(p.InlineData.Data) == 0 {
			continue
		}
		mimeType := strings.ToLower(p.InlineData.MIMEType)
		switch {
		case strings.HasPrefix(mimeType, "audio/l16"), strings.HasPrefix(mimeType, "audio/pcm"):
			rate := pcmSampleRate(mimeType)
			return provider.Media{Data: pcmToWAV(p.InlineData.Data, rate, 1, 16), MIMEType: "audio/wav"}, nil
		case strings.HasPrefix(mimeType, "audio/"):
			return provider.Media{Data: p.InlineData.Data, MIMEType: mimeType}, nil
		}
	}
	return provider.Media{}, errors.New("gemini speech: no audio returned")
}
