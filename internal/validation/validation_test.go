package validation

import (
	"bytes"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGoalText(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		category    string
		wantErr     string
	}{
		{name: "valid", title: "Run 5k", description: "Every morning", category: "fitness"},
		{name: "blank title", title: "   ", description: "d", category: "c", wantErr: "title is required"},
		{name: "missing description", title: "t", category: "c", wantErr: "description is required"},
		{name: "missing category", title: "t", description: "d", wantErr: "category is required"},
		{name: "long title", title: strings.Repeat("a", MaxTitleLength+1), description: "d", category: "c", wantErr: "title is too long"},
		{name: "nul byte", title: "bad\x00title", description: "d", category: "c", wantErr: "invalid characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGoalText(tt.title, tt.description, tt.category)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateProofText(t *testing.T) {
	assert.NoError(t, ValidateProofText("ran 5k, strava link attached"))
	assert.Error(t, ValidateProofText(""))
	assert.Error(t, ValidateProofText(strings.Repeat("x", MaxProofTextLength+1)))
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["image"][0]
}

func TestValidateFile(t *testing.T) {
	t.Run("accepts png", func(t *testing.T) {
		detected, err := ValidateFile(fileHeader(t, "proof.png", pngHeader), ProofImageConstraints)
		require.NoError(t, err)
		assert.Equal(t, "image/png", detected)
		assert.Equal(t, ".png", DetectedExtension(detected))
	})

	t.Run("rejects spoofed extension", func(t *testing.T) {
		_, err := ValidateFile(fileHeader(t, "proof.png", []byte("plain text pretending")), ProofImageConstraints)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid file type")
	})

	t.Run("rejects wrong extension", func(t *testing.T) {
		_, err := ValidateFile(fileHeader(t, "proof.gif", pngHeader), ProofImageConstraints)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid file extension")
	})

	t.Run("rejects oversize", func(t *testing.T) {
		header := fileHeader(t, "proof.png", pngHeader)
		header.Size = ProofImageConstraints.MaxSize + 1
		_, err := ValidateFile(header, ProofImageConstraints)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file too large")
	})

	t.Run("requires constraints", func(t *testing.T) {
		_, err := ValidateFile(fileHeader(t, "proof.png", pngHeader))
		assert.Error(t, err)
	})
}
