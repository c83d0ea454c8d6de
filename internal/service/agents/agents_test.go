package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/service/ai"
	"github.com/zhouzirui/design-desk/backend/internal/service/figma"
	"github.com/zhouzirui/design-desk/backend/internal/service/fragment"
)

type scriptedModel struct {
	generated string
	streamed  []string
	err       error

	generateCalls [][]*schema.Message
	streamCalls   [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.generateCalls = append(m.generateCalls, input)
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.generated, nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.streamCalls = append(m.streamCalls, input)
	if m.err != nil {
		return nil, m.err
	}
	msgs := make([]*schema.Message, 0, len(m.streamed))
	for _, part := range m.streamed {
		msgs = append(msgs, schema.AssistantMessage(part, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

type fakeFiles struct {
	file     *figma.File
	images   map[string]string
	fileErr  error
	rendered [][]string
}

func (f *fakeFiles) GetFile(context.Context, string) (*figma.File, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return f.file, nil
}

func (f *fakeFiles) RenderImages(_ context.Context, _ string, ids []string) (map[string]string, error) {
	f.rendered = append(f.rendered, ids)
	return f.images, nil
}

func designFile() *figma.File {
	return &figma.File{
		Name: "Checkout",
		Document: figma.Node{ID: "0:0", Type: "DOCUMENT", Children: []*figma.Node{
			{ID: "0:1", Name: "Page 1", Type: "CANVAS", Children: []*figma.Node{
				{ID: "1:2", Name: "Cart", Type: figma.NodeTypeFrame},
				{ID: "1:3", Name: "Payment", Type: figma.NodeTypeFrame},
			}},
		}},
	}
}

const designLink = "https://www.figma.com/design/AbC123/Checkout?node-id=0-1"

func history() []chat.Message {
	return []chat.Message{
		{Sender: "User", Body: "please look at this"},
		{Sender: "Assistant", Body: "   "},
	}
}

func TestExtractImagesListsFrames(t *testing.T) {
	files := &fakeFiles{
		file:   designFile(),
		images: map[string]string{"1:2": "https://img/cart.png", "1:3": "https://img/payment.png"},
	}
	svc := NewService(&scriptedModel{}, files, zerolog.Nop())

	got, err := fragment.Collect(svc.ExtractImages(context.Background(), designLink))
	require.NoError(t, err)

	out := strings.Join(got, "")
	assert.True(t, strings.HasPrefix(out, "> Extracting images from Figma...\n\n"))
	assert.Contains(t, out, "> Found 2 frame(s) to export")
	assert.Contains(t, out, "| Cart | https://img/cart.png |")
	assert.Contains(t, out, "| Payment | https://img/payment.png |")
	assert.True(t, strings.HasSuffix(out, extractClosing))
	require.Len(t, files.rendered, 1)
	assert.Equal(t, []string{"1:2", "1:3"}, files.rendered[0])
}

func TestExtractImagesFailsOnBadURL(t *testing.T) {
	svc := NewService(&scriptedModel{}, &fakeFiles{file: designFile()}, zerolog.Nop())

	got, err := fragment.Collect(svc.ExtractImages(context.Background(), "https://example.com/nothing"))
	assert.ErrorIs(t, err, figma.ErrInvalidURL)
	assert.Equal(t, []string{"> Extracting images from Figma...\n\n"}, got)
}

func TestDesignHandlersWithoutFiles(t *testing.T) {
	svc := NewService(&scriptedModel{}, nil, zerolog.Nop())

	_, err := fragment.Collect(svc.ReviewFrame(context.Background(), designLink, nil))
	assert.ErrorIs(t, err, figma.ErrMissingToken)
}

func TestReviewDesignSendsImageAfterHistory(t *testing.T) {
	fake := &scriptedModel{streamed: []string{"Looks ", "clean.\nFix contrast."}}
	svc := NewService(fake, nil, zerolog.Nop())

	got, err := fragment.Collect(svc.ReviewDesign(context.Background(), "https://img/a.png", history()))
	require.NoError(t, err)
	assert.Equal(t, []string{"Looks clean.\n", "Fix contrast."}, got)

	require.Len(t, fake.streamCalls, 1)
	msgs := fake.streamCalls[0]
	require.Len(t, msgs, 3, "system, one non-blank history entry, image")
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.RoleType("user"), msgs[1].Role)
	require.Len(t, msgs[2].MultiContent, 2)
	assert.Equal(t, "https://img/a.png", msgs[2].MultiContent[1].ImageURL.URL)
}

func TestReviewFrameRendersNode(t *testing.T) {
	files := &fakeFiles{file: designFile(), images: map[string]string{"1:2": "https://img/cart.png"}}
	fake := &scriptedModel{streamed: []string{"Solid frame."}}
	svc := NewService(fake, files, zerolog.Nop())

	got, err := fragment.Collect(svc.ReviewFrame(context.Background(), "https://www.figma.com/design/AbC123/x?node-id=1-2", nil))
	require.NoError(t, err)
	out := strings.Join(got, "")
	assert.Contains(t, out, "> Found frame: Cart")
	assert.True(t, strings.HasSuffix(out, "Solid frame."))
	require.Len(t, fake.streamCalls, 1)
	assert.Equal(t, ai.FrameReviewPrompt, fake.streamCalls[0][0].Content)
}

func TestReviewFrameMissingNode(t *testing.T) {
	files := &fakeFiles{file: designFile()}
	fake := &scriptedModel{}
	svc := NewService(fake, files, zerolog.Nop())

	_, err := fragment.Collect(svc.ReviewFrame(context.Background(), "https://www.figma.com/design/AbC123/x?node-id=9-9", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "9:9")
	assert.Empty(t, fake.streamCalls)
}

func TestReviewToneExtractsThenReviews(t *testing.T) {
	fake := &scriptedModel{generated: "Buy now", streamed: []string{"Too pushy."}}
	svc := NewService(fake, nil, zerolog.Nop())

	got, err := fragment.Collect(svc.ReviewTone(context.Background(), "https://img/a.png", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"📝 Extracted text content:\n\n",
		"Buy now\n\n",
		"🔍 Content review:\n\n",
		"Too pushy.",
	}, got)
	require.Len(t, fake.streamCalls, 1)
	assert.Equal(t, ai.CopyReviewInstruction+"Buy now", fake.streamCalls[0][1].Content)
}

func TestReviewToneExtractionFailure(t *testing.T) {
	fake := &scriptedModel{err: errors.New("quota")}
	svc := NewService(fake, nil, zerolog.Nop())

	got, err := fragment.Collect(svc.ReviewTone(context.Background(), "https://img/a.png", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
	assert.Empty(t, got)
	assert.Empty(t, fake.streamCalls)
}

func TestChatAppendsUserMessage(t *testing.T) {
	fake := &scriptedModel{streamed: []string{"Use flexbox."}}
	svc := NewService(fake, nil, zerolog.Nop())

	got, err := fragment.Collect(svc.Chat(context.Background(), history(), "How do I center a div?"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Use flexbox."}, got)

	msgs := fake.streamCalls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, "please look at this", msgs[0].Content)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, "How do I center a div?", msgs[1].Content)
}

func TestClarifyUsesSystemPrompt(t *testing.T) {
	fake := &scriptedModel{streamed: []string{"Which file?"}}
	svc := NewService(fake, nil, zerolog.Nop())

	_, err := fragment.Collect(svc.Clarify(context.Background(), history()))
	require.NoError(t, err)
	assert.Equal(t, ai.ClarifyPrompt, fake.streamCalls[0][0].Content)
}

func TestActivePRsIsPlaceholder(t *testing.T) {
	svc := NewService(&scriptedModel{}, nil, zerolog.Nop())

	got, err := fragment.Collect(svc.ActivePRs(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, []string{ActivePRsPlaceholder}, got)
}

func TestStreamStartFailureIsYielded(t *testing.T) {
	svc := NewService(&scriptedModel{err: errors.New("boom")}, nil, zerolog.Nop())

	_, err := fragment.Collect(svc.Chat(context.Background(), nil, "hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
