package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/chama-disputes-api/disputes"
)

type fakeAPI struct {
	uploaded  []uploader.UploadParams
	destroyed []uploader.DestroyParams
	uploadErr error
	apiError  string
}

func (f *fakeAPI) Upload(ctx context.Context, file interface{}, p uploader.UploadParams) (*uploader.UploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploaded = append(f.uploaded, p)
	res := &uploader.UploadResult{
		PublicID:  p.Folder + "/" + p.PublicID,
		SecureURL: "https://res.cloudinary.com/demo/" + p.Folder + "/" + p.PublicID,
	}
	res.Error = api.ErrorResp{Message: f.apiError}
	return res, nil
}

func (f *fakeAPI) Destroy(ctx context.Context, p uploader.DestroyParams) (*uploader.DestroyResult, error) {
	f.destroyed = append(f.destroyed, p)
	return &uploader.DestroyResult{Result: "ok"}, nil
}

var pdf = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

func TestUpload(t *testing.T) {
	f := &fakeAPI{}
	c := &Cloudinary{api: f}

	res, err := c.Upload(context.Background(), bytes.NewReader(pdf), "receipt.pdf", "chama-disputes/c1/d1", []string{"application/pdf"}, 1024)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", res.MimeType)
	assert.Equal(t, int64(len(pdf)), res.Size)
	assert.True(t, strings.HasPrefix(res.Key, "image:chama-disputes/c1/d1/"))
	require.Len(t, f.uploaded, 1)
	assert.Equal(t, "image", f.uploaded[0].ResourceType)

	require.NoError(t, c.Delete(context.Background(), res.Key))
	require.Len(t, f.destroyed, 1)
	assert.Equal(t, "image", f.destroyed[0].ResourceType)
	assert.Equal(t, strings.TrimPrefix(res.Key, "image:"), f.destroyed[0].PublicID)
}

func TestUploadValidation(t *testing.T) {
	c := &Cloudinary{api: &fakeAPI{}}
	ctx := context.Background()

	_, err := c.Upload(ctx, bytes.NewReader(pdf), "big.pdf", "f", nil, 4)
	assert.ErrorIs(t, err, disputes.ErrInvalidArgument)

	_, err = c.Upload(ctx, strings.NewReader("plain text notes"), "notes.txt", "f", []string{"application/pdf", "image/png"}, 1024)
	assert.ErrorIs(t, err, disputes.ErrInvalidArgument)

	_, err = c.Upload(ctx, strings.NewReader(""), "empty.pdf", "f", nil, 1024)
	assert.ErrorIs(t, err, disputes.ErrInvalidArgument)
}

func TestUploadFailures(t *testing.T) {
	ctx := context.Background()

	c := &Cloudinary{api: &fakeAPI{uploadErr: errors.New("timeout")}}
	_, err := c.Upload(ctx, bytes.NewReader(pdf), "r.pdf", "f", nil, 1024)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, disputes.ErrInvalidArgument)

	c = &Cloudinary{api: &fakeAPI{apiError: "Invalid Signature"}}
	_, err = c.Upload(ctx, bytes.NewReader(pdf), "r.pdf", "f", nil, 1024)
	assert.EqualError(t, err, "failed to upload evidence: Invalid Signature")

	assert.Error(t, c.Delete(ctx, "no-resource-type"))
}
