package transfer

import (
	"mime"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormEncodeRoundTrip(t *testing.T) {
	f := &Form{
		Fields: []FormField{{Name: "name", Value: "ada"}},
		Files: []FormFile{
			{FieldName: "avatar", FileName: "pic.png", Reader: strings.NewReader("binarydata")},
		},
	}
	body, contentType, err := f.Encode()
	require.NoError(t, err)

	_, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	boundary := params["boundary"]
	require.NotEmpty(t, boundary)

	reader := multipart.NewReader(strings.NewReader(string(body)), boundary)

	part, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "name", part.FormName())

	part, err = reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "avatar", part.FormName())
	assert.Equal(t, "pic.png", part.FileName())
}

func TestFormEncodeEmpty(t *testing.T) {
	f := &Form{}
	body, contentType, err := f.Encode()
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.Contains(t, contentType, "multipart/form-data")
}
