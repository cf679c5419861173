package services_test

import (
	"context"
	"encoding/json"
	"testing"

	"livon-client/internal/core/contracts/contractstest"
	"livon-client/internal/core/domain"
	"livon-client/internal/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var photo = domain.File{Name: "cat.png", ContentType: "image/png", Data: []byte("\x89PNG....")}

func newCoordinator(t *testing.T, uploader *contractstest.Uploader) (*services.Coordinator, *seqFixture) {
	t.Helper()
	f := newSeq(t, services.SequencerOptions{OptimisticEcho: true})
	return services.NewCoordinator(nil, "r1", uploader, f.seq), f
}

func TestCoordinator_UploadThenSend(t *testing.T) {
	uploader := &contractstest.Uploader{Attachment: domain.Attachment{
		ID: "a1", Type: domain.AttachmentImage, URL: "http://files/a1", Name: "cat.png", Size: 1536,
	}}
	c, f := newCoordinator(t, uploader)

	msg, err := c.SendAttachment(context.Background(), photo, " look ")
	require.NoError(t, err)
	assert.Equal(t, "look", msg.Content)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "1.5 KiB", msg.Attachment.HumanSize())

	frames := f.publisher.Frames("/app/sendMessage/r1")
	require.Len(t, frames, 1)
	var req domain.SendMessageRequest
	require.NoError(t, json.Unmarshal([]byte(frames[0].Body), &req))
	require.NotNil(t, req.Attachment)
	assert.Equal(t, "a1", req.Attachment.ID)
	assert.Len(t, f.store.Messages(), 1)
}

func TestCoordinator_UploadFailedSendsNothing(t *testing.T) {
	uploader := &contractstest.Uploader{Err: contractstest.ErrBoom}
	c, f := newCoordinator(t, uploader)

	_, err := c.SendAttachment(context.Background(), photo, "look")

	require.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.ErrorIs(t, err, contractstest.ErrBoom)
	assert.Empty(t, f.publisher.Frames(""))
	assert.Empty(t, f.store.Messages())
}

func TestCoordinator_SendAfterUploadFailedAddsNothing(t *testing.T) {
	uploader := &contractstest.Uploader{Attachment: domain.Attachment{ID: "a1"}}
	c, f := newCoordinator(t, uploader)
	f.publisher.Fail(domain.ErrNotConnected)

	_, err := c.SendAttachment(context.Background(), photo, "look")

	require.ErrorIs(t, err, domain.ErrSendAfterUploadFailed)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Equal(t, 1, uploader.Calls)
	assert.Empty(t, f.store.Messages())
}

func TestCoordinator_EmptyFile(t *testing.T) {
	uploader := &contractstest.Uploader{}
	c, _ := newCoordinator(t, uploader)

	_, err := c.SendAttachment(context.Background(), domain.File{Name: "empty.txt"}, "")

	require.ErrorIs(t, err, domain.ErrEmpty)
	assert.Zero(t, uploader.Calls)
}

func TestCoordinator_ClosedDuringUpload(t *testing.T) {
	uploader := &contractstest.Uploader{Attachment: domain.Attachment{ID: "a1"}}
	c, f := newCoordinator(t, uploader)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.SendAttachment(ctx, photo, "late")

	require.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.Empty(t, f.publisher.Frames(""))
}
