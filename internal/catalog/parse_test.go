package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluewater-supply/partsync/internal/model"
)

var extractedAt = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

func pageOne() string {
	return strings.Join([]string{
		"CASCADE SPAS PARTS CATALOG",
		"",
		"PILLOWS & HEADRESTS",
		"",
		"6000-125   PILLOW, LOUNGE ............ $24.99",
		"6000-126   PILLOW, CORNER",
		"6472-22    BRACKET, PILLOW MOUNT",
	}, "\n")
}

func pageTwo() string {
	return strings.Join([]string{
		"JETS",
		"",
		"6540-519   JET, CLUSTER STORM $14.10",
		"W1234-567  JET WRENCH",
		"see dealer for current pricing",
		"6540-519   JET, CLUSTER STORM, DIRECTIONAL NOZZLE",
		"6000-125   PILLOW",
	}, "\n")
}

func TestParsePages(t *testing.T) {
	t.Parallel()
	text := pageOne() + "\f" + pageTwo()

	records, pageErrs := parsePages(text, "cascade_2024_spring", extractedAt)
	require.Empty(t, pageErrs)

	parts := make([]string, len(records))
	for i, rec := range records {
		parts[i] = rec.PartNumber
	}
	assert.Equal(t, []string{"6000-125", "6000-126", "6472-22", "6540-519", "W1234-567"}, parts)

	byPart := make(map[string]model.CatalogRecord, len(records))
	for _, rec := range records {
		assert.Equal(t, "cascade_2024_spring", rec.CatalogVersion)
		byPart[rec.PartNumber] = rec
	}

	lounge := byPart["6000-125"]
	assert.Equal(t, "PILLOW, LOUNGE", lounge.Description, "dot leader and price stripped")
	assert.Equal(t, "PILLOWS & HEADRESTS", lounge.Category)
	assert.Equal(t, 1, lounge.PageReference, "first sighting wins")

	jet := byPart["6540-519"]
	assert.Equal(t, "JET, CLUSTER STORM, DIRECTIONAL NOZZLE", jet.Description, "longest description wins")
	assert.Equal(t, "JETS", jet.Category)
	assert.Equal(t, 2, jet.PageReference)

	assert.Equal(t, "JET WRENCH", byPart["W1234-567"].Description)
}

func TestParsePages_CorruptPage(t *testing.T) {
	t.Parallel()
	garbage := strings.Repeat("�\x01", 40)
	text := pageOne() + "\f" + garbage + "\f" + pageTwo()

	records, pageErrs := parsePages(text, "cascade_2024_spring", extractedAt)

	require.Len(t, pageErrs, 1)
	assert.Equal(t, model.ErrorPDFParse, pageErrs[0].Type)
	assert.Equal(t, "2", pageErrs[0].PageReference)
	assert.Empty(t, pageErrs[0].PartNumber)
	assert.Equal(t, extractedAt, pageErrs[0].Timestamp)

	// Good pages on either side still parse.
	assert.Len(t, records, 5)
}

func TestParsePages_BlankPagesAreNotErrors(t *testing.T) {
	t.Parallel()
	text := pageOne() + "\f" + "   \n  " + "\f" + pageTwo()

	records, pageErrs := parsePages(text, "v1", extractedAt)
	assert.Empty(t, pageErrs)
	assert.Len(t, records, 5)
}

func TestIsCategoryHeading(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line string
		want bool
	}{
		{"PILLOWS & HEADRESTS", true},
		{"JETS", true},
		{"  FILTERS  ", true},
		{"Pillows & Headrests", false},
		{"SECTION 4", false},
		{"$24.99", false},
		{"--", false},
		{"", false},
		{strings.Repeat("A", 61), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isCategoryHeading(tt.line), "line %q", tt.line)
	}
}

func TestPageCorrupt(t *testing.T) {
	t.Parallel()
	assert.False(t, pageCorrupt(""))
	assert.False(t, pageCorrupt("   \n\t  "))
	assert.False(t, pageCorrupt(pageOne()))
	assert.True(t, pageCorrupt(strings.Repeat("�", 20)))
	assert.True(t, pageCorrupt("ok\x01\x02\x03\x04\x05\x06\x07\x08"))
}

func TestCleanDescription(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"PILLOW, LOUNGE ............ $24.99", "PILLOW, LOUNGE"},
		{"JET, CLUSTER STORM $14.10", "JET, CLUSTER STORM"},
		{"BRACKET,   PILLOW   MOUNT", "BRACKET, PILLOW MOUNT"},
		{"HEATER 5.5KW", "HEATER 5.5KW"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanDescription(tt.in), "in %q", tt.in)
	}
}
