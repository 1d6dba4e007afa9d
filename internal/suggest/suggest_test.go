package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild_MultiWordTitle(t *testing.T) {
	got := Build("Paris Walking Tour")

	assert.Equal(t, []string{
		"Paris Walking Tour",
		"paris walking tour",
		"Paris-Walking-Tour",
		"Paris",
		"Walking",
		"Tour",
	}, got)
}

func TestBuild_EmptyTitle(t *testing.T) {
	for _, title := range []string{"", "   ", "\t\n"} {
		got := Build(title)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestBuild_SingleWord(t *testing.T) {
	assert.Equal(t, []string{"Kyoto", "kyoto"}, Build("Kyoto"))
	assert.Equal(t, []string{"rome"}, Build("rome"))
}

func TestBuild_ShortWordsSkipped(t *testing.T) {
	got := Build("A Day in Rome")

	assert.Contains(t, got, "Day")
	assert.Contains(t, got, "Rome")
	assert.NotContains(t, got, "A")
	assert.NotContains(t, got, "in")
}

func TestBuild_WhitespaceRunsCollapseToOneHyphen(t *testing.T) {
	got := Build("Lake   Bled\tHike")

	assert.Contains(t, got, "Lake-Bled-Hike")
	assert.Contains(t, got, "Lake   Bled\tHike")
}

func TestBuild_CountsRunesNotBytes(t *testing.T) {
	// "Çay" is three runes but four bytes; "ük" is two runes.
	got := Build("Çay ük")

	assert.Contains(t, got, "Çay")
	assert.NotContains(t, got, "ük")
	assert.Contains(t, got, "çay ük")
}

func TestBuild_KeepsOriginalTitleVerbatim(t *testing.T) {
	got := Build("  Paris Tour ")

	assert.Equal(t, []string{
		"  Paris Tour ",
		"Paris Tour",
		"paris tour",
		"Paris-Tour",
		"Paris",
		"Tour",
	}, got)
}

func TestBuild_Deduplicates(t *testing.T) {
	got := Build("tour tour")

	assert.Equal(t, []string{"tour tour", "tour-tour", "tour"}, got)
}
