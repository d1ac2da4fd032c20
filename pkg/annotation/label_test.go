package annotation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateLabel(t *testing.T) {
	for _, label := range []string{"", " ", "\t", "\n  \r\n", "\u00a0\u2003"} {
		_, err := ValidateLabel(label)
		require.ErrorIs(t, err, ErrEmptyLabel, "label %q", label)
	}

	for _, label := range []string{"cavity", "impacted tooth", "  crown ", "Root-Canal/2", "кариес"} {
		got, err := ValidateLabel(label)
		require.NoError(t, err)
		require.Equal(t, label, got)
	}

	for _, label := range []string{"cav\nity", "cavity\n", "\rcrown", "root\r\ncanal", "a\u2028b"} {
		_, err := ValidateLabel(label)
		require.ErrorIs(t, err, ErrLabelLineBreak, "label %q", label)
	}
}

func TestLabelRecordLine(t *testing.T) {
	rec, err := NewLabelRecord("cavity", CropRegion{100, 150, 300, 450}, 800, 600)
	require.NoError(t, err)
	require.Equal(t, "cavity 0.250000 0.500000 0.250000 0.500000\n", rec.Line())

	rec, err = NewLabelRecord("healthy", CropRegion{0, 0, 1000, 1000}, 1000, 1000)
	require.NoError(t, err)
	require.Equal(t, "healthy 0.500000 0.500000 1.000000 1.000000\n", rec.Line())

	rec, err = NewLabelRecord("deep caries", CropRegion{0, 0, 1, 1}, 3, 3)
	require.NoError(t, err)
	require.Equal(t, "deep caries 0.166667 0.166667 0.333333 0.333333\n", rec.Line())
}

func TestNewLabelRecordErrors(t *testing.T) {
	_, err := NewLabelRecord("", CropRegion{100, 150, 300, 450}, 800, 600)
	require.ErrorIs(t, err, ErrEmptyLabel)

	_, err = NewLabelRecord("cavity", CropRegion{50, 50, 50, 200}, 800, 600)
	require.ErrorIs(t, err, ErrDegenerateRegion)
}

func TestBaseFilename(t *testing.T) {
	tests := map[string]string{
		"tooth.png":               "tooth",
		"uploads/2024/molar.jpeg": "molar",
		`C:\Users\dr\xray 01.bmp`: "xray 01",
		"archive.tar.gz":          "archive.tar",
		"noext":                   "noext",
		".hidden":                 ".hidden",
		"panoramic scan (1).webp": "panoramic scan (1)",
	}
	for in, want := range tests {
		got, err := BaseFilename(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "/", ".."} {
		_, err := BaseFilename(in)
		require.ErrorIs(t, err, ErrInvalidBaseName, "name %q", in)
	}
}
