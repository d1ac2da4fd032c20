package annotation

import (
	"fmt"
	"path"
	"strings"
)

// lineBreaks are the characters that would end a label line early
const lineBreaks = "\n\r\v\f\u0085\u2028\u2029"

// ValidateLabel rejects labels that are empty, whitespace only, or contain
// a line break. The label is returned exactly as given.
func ValidateLabel(label string) (string, error) {
	if strings.TrimSpace(label) == "" {
		return "", ErrEmptyLabel
	}
	if strings.ContainsAny(label, lineBreaks) {
		return "", fmt.Errorf("%w: %q", ErrLabelLineBreak, label)
	}
	return label, nil
}

// LabelRecord is one exported annotation line.
type LabelRecord struct {
	Label string        `json:"label"`
	Box   NormalizedBox `json:"box"`
}

// Line renders the record as "<label> <xc> <yc> <w> <h>\n" with six decimals.
func (r LabelRecord) Line() string {
	return fmt.Sprintf("%s %.6f %.6f %.6f %.6f\n", r.Label, r.Box.XCenter, r.Box.YCenter, r.Box.Width, r.Box.Height)
}

// NewLabelRecord validates the label and region and builds the record.
func NewLabelRecord(label string, region CropRegion, width, height int) (LabelRecord, error) {
	label, err := ValidateLabel(label)
	if err != nil {
		return LabelRecord{}, err
	}
	box, err := ComputeNormalizedBox(region, width, height)
	if err != nil {
		return LabelRecord{}, err
	}
	return LabelRecord{Label: label, Box: box}, nil
}

// BaseFilename strips directories and the extension from an uploaded file name.
func BaseFilename(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if stem := strings.TrimSuffix(base, path.Ext(base)); stem != "" {
		base = stem
	}
	if base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseName, name)
	}
	return base, nil
}
