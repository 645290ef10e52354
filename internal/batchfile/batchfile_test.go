package batchfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLines(t *testing.T) {
	input := strings.Join([]string{
		"# splash screens",
		"splash1 | Anime girl, text \"OH MY GOD\" at top",
		"",
		"banner1 | Marketing banner | text \"SALE\" center",
		"A lonely prompt without a name",
	}, "\n")

	jobs, err := ParseLines(strings.NewReader(input), 768, 1344)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, "splash1", jobs[0].FilenamePrefix)
	assert.Equal(t, "Anime girl, text \"OH MY GOD\" at top", jobs[0].Prompt)
	assert.Equal(t, 768, jobs[0].Width)
	assert.Equal(t, 1344, jobs[0].Height)
	assert.Nil(t, jobs[0].Seed)

	// only the first '|' separates the name
	assert.Equal(t, "banner1", jobs[1].FilenamePrefix)
	assert.Equal(t, "Marketing banner | text \"SALE\" center", jobs[1].Prompt)

	// physical line index, comments and blanks included
	assert.Equal(t, "zimage_4", jobs[2].FilenamePrefix)
	assert.Equal(t, "A lonely prompt without a name", jobs[2].Prompt)
}

func TestParseLines_EmptyPrompt(t *testing.T) {
	_, err := ParseLines(strings.NewReader("name |   \n"), 1024, 1024)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidJob)
	assert.Contains(t, err.Error(), "line 1")
}

func TestReadLinesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.txt")
	require.NoError(t, os.WriteFile(path, []byte("a | first\nb | second\n"), 0o644))

	jobs, err := ReadLinesFile(path, 1024, 1024)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[1].FilenamePrefix)

	_, err = ReadLinesFile(filepath.Join(t.TempDir(), "missing.txt"), 1024, 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open batch file")
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		check   func(t *testing.T, jobs []domain.Job)
	}{
		{
			name:  "defaults applied",
			input: `[{"prompt": "Girl with text \"HI\"", "filename_prefix": "img1", "width": 768, "height": 1344}, {"prompt": "Cat with text \"MEOW\""}]`,
			check: func(t *testing.T, jobs []domain.Job) {
				require.Len(t, jobs, 2)
				assert.Equal(t, "img1", jobs[0].FilenamePrefix)
				assert.Equal(t, 768, jobs[0].Width)
				assert.Equal(t, "zimage_1", jobs[1].FilenamePrefix)
				assert.Equal(t, 1080, jobs[1].Width)
				assert.Equal(t, 1920, jobs[1].Height)
			},
		},
		{
			name:  "seed kept including zero",
			input: `[{"prompt": "x", "seed": 0}, {"prompt": "y", "seed": 42}]`,
			check: func(t *testing.T, jobs []domain.Job) {
				require.NotNil(t, jobs[0].Seed)
				assert.Equal(t, int64(0), *jobs[0].Seed)
				assert.Equal(t, int64(42), *jobs[1].Seed)
			},
		},
		{
			name:  "empty array",
			input: `[]`,
			check: func(t *testing.T, jobs []domain.Job) {
				assert.Empty(t, jobs)
			},
		},
		{
			name:    "malformed json",
			input:   `{"prompt": "x"}`,
			wantErr: domain.ErrInvalidPayload,
		},
		{
			name:    "missing prompt",
			input:   `[{"filename_prefix": "x"}]`,
			wantErr: domain.ErrInvalidJob,
		},
		{
			name:    "negative size",
			input:   `[{"prompt": "x", "width": -1}]`,
			wantErr: domain.ErrInvalidJob,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := ParseJSON([]byte(tt.input), 1080, 1920)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, jobs)
		})
	}
}
