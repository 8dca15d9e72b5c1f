package telegram

import (
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"image-similarity/internal/domain/entity"
)

func TestFormatResult(t *testing.T) {
	text := formatResult(&entity.ComparisonResult{
		CosineSimilarity: 0.91234,
		CosinePercentage: 91.23,
		SSIMScore:        0.5,
		SSIMPercentage:   50,
		MatchCount:       12,
		KeypointsA:       300,
		KeypointsB:       280,
		FeatureExtractor: entity.ModelMobileNet,
		ResizePolicy:     entity.PolicyCrop,
		Elapsed:          1500 * time.Millisecond,
	})

	require.Contains(t, text, "91.23%")
	require.Contains(t, text, "cos = 0.9123")
	require.Contains(t, text, "50.00%")
	require.Contains(t, text, "Совпадения точек: 12")
	require.Contains(t, text, "mobilenet")
	require.Contains(t, text, "crop")
	require.Contains(t, text, "1500 мс")
}

func TestApplySetting(t *testing.T) {
	opts, err := applySetting(entity.ComparisonOptions{}, "model", " MobileNet ")
	require.NoError(t, err)
	require.Equal(t, entity.ModelMobileNet, opts.FeatureExtractor)

	opts, err = applySetting(opts, "policy", "keep_aspect")
	require.NoError(t, err)
	require.Equal(t, entity.PolicyKeepAspect, opts.ResizePolicy)

	opts, err = applySetting(opts, "matches", "60")
	require.NoError(t, err)
	require.Equal(t, 60, opts.MaxMatches)

	_, err = applySetting(opts, "matches", "-3")
	require.ErrorIs(t, err, entity.ErrInvalidRequest)

	_, err = applySetting(opts, "model", "")
	require.ErrorIs(t, err, entity.ErrInvalidRequest)
}

func TestUserMessage_HidesInternals(t *testing.T) {
	msg := userMessage(entity.ExtractionFailed(errors.New("cuda out of memory"), "feature extraction failed"))
	require.NotContains(t, msg, "cuda")

	require.Contains(t, userMessage(entity.DegenerateVector("flat")), "нейтрально-серое")
	require.Equal(t, "maxOrbMatches must not exceed 500", userMessage(entity.InvalidRequest("maxOrbMatches must not exceed %d", 500)))
}

func TestImageFile(t *testing.T) {
	id, size, ok := imageFile(&tgbotapi.Message{Photo: []tgbotapi.PhotoSize{
		{FileID: "small", FileSize: 10},
		{FileID: "large", FileSize: 100},
	}})
	require.True(t, ok)
	require.Equal(t, "large", id)
	require.Equal(t, 100, size)

	id, _, ok = imageFile(&tgbotapi.Message{Document: &tgbotapi.Document{FileID: "doc", MimeType: "image/webp"}})
	require.True(t, ok)
	require.Equal(t, "doc", id)

	_, _, ok = imageFile(&tgbotapi.Message{Document: &tgbotapi.Document{FileID: "pdf", MimeType: "application/pdf"}})
	require.False(t, ok)
}
