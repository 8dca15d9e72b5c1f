package vision

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/testutil"
)

func TestORB_SameImageMatchesItself(t *testing.T) {
	img := normalizedScene(t, 256, 21)
	m := NewORBMatcher(500, 0.75)

	set, err := m.Match(context.Background(), img, img, 60)
	require.NoError(t, err)
	require.NotEmpty(t, set.KeypointsA)
	require.Equal(t, len(set.KeypointsA), len(set.KeypointsB))
	require.NotEmpty(t, set.Matches)
	require.Equal(t, 0, set.Matches[0].Distance)
}

func TestORB_Deterministic(t *testing.T) {
	img := normalizedScene(t, 200, 22)
	m := NewORBMatcher(300, 0.75)
	require.Equal(t, m.Detect(img), m.Detect(img))
}

func TestORB_TruncatesAndSorts(t *testing.T) {
	a := normalizedScene(t, 256, 23)
	b := normalizedScene(t, 256, 24)
	m := NewORBMatcher(500, 0.9)

	for _, limit := range []int{1, 10, 30, 60} {
		set, err := m.Match(context.Background(), a, a, limit)
		require.NoError(t, err)
		require.LessOrEqual(t, len(set.Matches), limit)

		set, err = m.Match(context.Background(), a, b, limit)
		require.NoError(t, err)
		require.LessOrEqual(t, len(set.Matches), limit)
		for i := 1; i < len(set.Matches); i++ {
			require.LessOrEqual(t, set.Matches[i-1].Distance, set.Matches[i].Distance)
		}
	}
}

func TestORB_BlankImageHasNoMatches(t *testing.T) {
	n := NewNormalizer(128, 128, 0, 0)
	blank, err := n.FromImage(testutil.Solid(128, 128, color.RGBA{R: 90, G: 90, B: 90, A: 255}), entity.PolicyFit)
	require.NoError(t, err)
	textured := normalizedScene(t, 128, 25)

	set, err := NewORBMatcher(500, 0.75).Match(context.Background(), blank, textured, 30)
	require.NoError(t, err)
	require.Empty(t, set.KeypointsA)
	require.NotNil(t, set.Matches)
	require.Empty(t, set.Matches)
}

func TestORB_CanceledContext(t *testing.T) {
	img := normalizedScene(t, 128, 26)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewORBMatcher(100, 0.75).Match(ctx, img, img, 10)
	require.ErrorIs(t, err, context.Canceled)
}

func descriptorWithBits(n int) entity.Descriptor {
	var d entity.Descriptor
	for i := 0; i < n; i++ {
		d.SetBit(i)
	}
	return d
}

func TestMatchDescriptors_RatioTest(t *testing.T) {
	a := []entity.Keypoint{
		{Descriptor: descriptorWithBits(0)},
		{Descriptor: descriptorWithBits(100)},
	}
	b := []entity.Keypoint{
		{Descriptor: descriptorWithBits(2)},   // близко к a[0]
		{Descriptor: descriptorWithBits(60)},  // далеко от обоих
		{Descriptor: descriptorWithBits(101)}, // неоднозначно для a[1] вместе с b[3]
		{Descriptor: descriptorWithBits(99)},
	}

	matches := MatchDescriptors(a, b, 0.75, 10)
	require.Equal(t, []entity.Match{{QueryIdx: 0, TrainIdx: 0, Distance: 2}}, matches)
}

func TestMatchDescriptors_TrainUsedOnce(t *testing.T) {
	a := []entity.Keypoint{
		{Descriptor: descriptorWithBits(3)},
		{Descriptor: descriptorWithBits(1)},
	}
	b := []entity.Keypoint{
		{Descriptor: descriptorWithBits(0)},
		{Descriptor: descriptorWithBits(200)},
	}

	matches := MatchDescriptors(a, b, 0.75, 10)
	require.Equal(t, []entity.Match{{QueryIdx: 1, TrainIdx: 0, Distance: 1}}, matches)
}

func TestMatchDescriptors_Empty(t *testing.T) {
	kp := []entity.Keypoint{{Descriptor: descriptorWithBits(5)}}
	require.Empty(t, MatchDescriptors(nil, kp, 0.75, 10))
	require.Empty(t, MatchDescriptors(kp, nil, 0.75, 10))
	require.Empty(t, MatchDescriptors(kp, kp, 0.75, 0))
}
