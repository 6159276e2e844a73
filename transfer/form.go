package transfer

import (
	"bytes"
	"io"
	"mime/multipart"
)

// FormField is a single scalar field in a multipart form body.
type FormField struct {
	Name  string
	Value string
}

// FormFile is a single file field in a multipart form body.
type FormFile struct {
	FieldName string
	FileName  string
	Reader    io.Reader
}

// Form is a multipart POST body. Encode builds the full body plus its
// Content-Type boundary header value in one pass.
type Form struct {
	Fields []FormField
	Files  []FormFile
}

// Encode serialises the form as multipart/form-data and returns the body
// together with the Content-Type header value carrying the boundary.
func (f *Form) Encode() (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range f.Fields {
		if err := w.WriteField(field.Name, field.Value); err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.Files {
		part, err := w.CreateFormFile(file.FieldName, file.FileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file.Reader); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
