package services

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-platform/utils"
)

func incomingFile(name, content string) IncomingFile {
	return IncomingFile{
		Filename: name,
		Size:     int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func domainCode(t *testing.T, err error) utils.ErrorCode {
	t.Helper()
	var de *utils.DomainError
	require.ErrorAs(t, err, &de)
	return de.Code
}

func TestValidateAcceptsSupportedTypes(t *testing.T) {
	v := NewFileValidator(1 << 20)
	for _, name := range []string{"a.pdf", "b.docx", "c.txt", "d.md", "e.markdown", "F.TXT"} {
		res, err := v.Validate(incomingFile(name, "some content here"))
		require.NoError(t, err, name)
		assert.NotEmpty(t, res.FileType)
		assert.Equal(t, int64(17), res.ByteSize)
	}
}

func TestValidateRejectsUnsupportedType(t *testing.T) {
	v := NewFileValidator(1 << 20)
	_, err := v.Validate(incomingFile("sheet.xlsx", "content"))
	assert.Equal(t, utils.CodeFileValidationType, domainCode(t, err))

	_, err = v.Validate(incomingFile("noextension", "content"))
	assert.Equal(t, utils.CodeFileValidationType, domainCode(t, err))
}

func TestValidateRejectsEmptyFile(t *testing.T) {
	v := NewFileValidator(1 << 20)
	_, err := v.Validate(incomingFile("empty.txt", ""))
	assert.Equal(t, utils.CodeFileValidationEmpty, domainCode(t, err))
}

func TestValidateRejectsOversizedFile(t *testing.T) {
	v := NewFileValidator(10)
	_, err := v.Validate(incomingFile("big.txt", strings.Repeat("x", 11)))
	assert.Equal(t, utils.CodeFileValidationSize, domainCode(t, err))
}

func TestValidateCatchesUndeclaredOversize(t *testing.T) {
	v := NewFileValidator(10)
	// Declared size lies; the stream is larger.
	file := IncomingFile{
		Filename: "liar.txt",
		Size:     5,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(strings.Repeat("x", 50))), nil
		},
	}
	_, err := v.Validate(file)
	assert.Equal(t, utils.CodeFileValidationSize, domainCode(t, err))
}

func TestValidateHashIsContentOnly(t *testing.T) {
	v := NewFileValidator(1 << 20)
	a, err := v.Validate(incomingFile("one.txt", "identical bytes"))
	require.NoError(t, err)
	b, err := v.Validate(incomingFile("two.md", "identical bytes"))
	require.NoError(t, err)
	c, err := v.Validate(incomingFile("three.txt", "different bytes!"))
	require.NoError(t, err)

	assert.Equal(t, a.ContentHash, b.ContentHash)
	assert.NotEqual(t, a.ContentHash, c.ContentHash)
	assert.Len(t, a.ContentHash, 64)
}

func TestValidateOpenFailure(t *testing.T) {
	v := NewFileValidator(1 << 20)
	file := IncomingFile{
		Filename: "broken.txt",
		Size:     10,
		Open: func() (io.ReadCloser, error) {
			return nil, errors.New("boom")
		},
	}
	_, err := v.Validate(file)
	assert.Equal(t, utils.CodeInternal, domainCode(t, err))
}

func TestValidateLargeStream(t *testing.T) {
	v := NewFileValidator(1 << 20)
	data := bytes.Repeat([]byte("abc123"), 10000)
	file := IncomingFile{
		Filename: "data.txt",
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
	res, err := v.Validate(file)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.ByteSize)
}
