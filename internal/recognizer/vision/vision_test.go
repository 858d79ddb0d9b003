package vision

import (
	"context"
	"image"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"docscan/internal/recognizer"
	"docscan/pkg/models"
)

type fakeAnnotator struct {
	resp   *visionpb.BatchAnnotateImagesResponse
	err    error
	gotReq *visionpb.BatchAnnotateImagesRequest
	closed bool
}

func (f *fakeAnnotator) BatchAnnotateImages(_ context.Context, req *visionpb.BatchAnnotateImagesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	f.gotReq = req
	return f.resp, f.err
}

func (f *fakeAnnotator) Close() error {
	f.closed = true
	return nil
}

func annotation(text string, blockConfidences []float32, languages ...string) *visionpb.BatchAnnotateImagesResponse {
	page := &visionpb.Page{Property: &visionpb.TextAnnotation_TextProperty{}}
	for _, lang := range languages {
		page.Property.DetectedLanguages = append(page.Property.DetectedLanguages,
			&visionpb.TextAnnotation_DetectedLanguage{LanguageCode: lang, Confidence: 0.9})
	}
	for _, c := range blockConfidences {
		page.Blocks = append(page.Blocks, &visionpb.Block{Confidence: c})
	}
	return &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{
			{FullTextAnnotation: &visionpb.TextAnnotation{Text: text, Pages: []*visionpb.Page{page}}},
		},
	}
}

func testImage() *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, 4, 4))
}

func TestRecognizeDocumentText(t *testing.T) {
	fake := &fakeAnnotator{resp: annotation("PASSPORT\nP1234567", []float32{0.9, 0.8}, "de")}
	b := NewWithClient(fake)

	resp, err := b.Recognize(context.Background(), recognizer.Request{Image: testImage(), Language: "de-AT"})
	require.NoError(t, err)

	assert.Equal(t, "PASSPORT\nP1234567", resp.Text)
	assert.True(t, resp.HasConfidence)
	assert.Equal(t, 85, resp.Confidence)
	assert.Equal(t, "de", resp.Language)
	assert.Empty(t, resp.Fields)

	require.Len(t, fake.gotReq.GetRequests(), 1)
	sent := fake.gotReq.GetRequests()[0]
	assert.Equal(t, visionpb.Feature_DOCUMENT_TEXT_DETECTION, sent.GetFeatures()[0].GetType())
	assert.Equal(t, []string{"de"}, sent.GetImageContext().GetLanguageHints())
	assert.NotEmpty(t, sent.GetImage().GetContent())
}

func TestRecognizeWithoutConfidence(t *testing.T) {
	b := NewWithClient(&fakeAnnotator{resp: annotation("some text", nil)})

	resp, err := b.Recognize(context.Background(), recognizer.Request{Image: testImage(), Language: "en"})
	require.NoError(t, err)

	assert.False(t, resp.HasConfidence)
	assert.Equal(t, "en", resp.Language)
}

func TestRecognizeEmptyText(t *testing.T) {
	b := NewWithClient(&fakeAnnotator{resp: annotation("  \n", []float32{0.4})})

	_, err := b.Recognize(context.Background(), recognizer.Request{Image: testImage()})

	assert.ErrorIs(t, err, recognizer.ErrEmptyText)
}

func TestRecognizeClassifiesErrors(t *testing.T) {
	t.Run("call error", func(t *testing.T) {
		b := NewWithClient(&fakeAnnotator{err: status.Error(codes.ResourceExhausted, "quota")})
		_, err := b.Recognize(context.Background(), recognizer.Request{Image: testImage()})
		kind, ok := recognizer.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, recognizer.RateLimited, kind)
	})

	t.Run("per-image error", func(t *testing.T) {
		b := NewWithClient(&fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{
				{Error: &spb.Status{Code: int32(codes.InvalidArgument), Message: "bad image data"}},
			},
		}})
		_, err := b.Recognize(context.Background(), recognizer.Request{Image: testImage()})
		kind, _ := recognizer.KindOf(err)
		assert.Equal(t, recognizer.ClientError, kind)
		assert.Contains(t, err.Error(), "bad image data")
	})
}

func TestAvailabilityAndClose(t *testing.T) {
	assert.False(t, New(Config{}).Available())
	assert.True(t, New(Config{APIKey: "k"}).Available())
	assert.True(t, New(Config{CredentialsFile: "/tmp/creds.json"}).Available())

	_, err := New(Config{}).Recognize(context.Background(), recognizer.Request{Image: testImage()})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	kind, _ := recognizer.KindOf(err)
	assert.Equal(t, recognizer.Unavailable, kind)

	fake := &fakeAnnotator{}
	require.NoError(t, NewWithClient(fake).Close())
	assert.True(t, fake.closed)

	assert.Equal(t, models.ServiceGoogle, New(Config{}).Name())
	assert.Equal(t, recognizer.KindVision, New(Config{}).Kind())
}
