package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSections_MarkdownHeadingsWithLists(t *testing.T) {
	text := `## Analysis of CS101

### 1. Student Strengths
1. Recursion base cases
2. **Loops**: iteration is solid

### 2. Student Weaknesses
- Pointer arithmetic
- Big-O notation

### 3. Common Topics
1. Recursion
2. Sorting

### 4. Recommendations
1. Add more practice on pointers
`
	got := ExtractSections(text)

	assert.Equal(t, []string{"Recursion base cases", "Loops: iteration is solid"}, got.Strengths)
	assert.Equal(t, []string{"Pointer arithmetic", "Big-O notation"}, got.Weaknesses)
	assert.Equal(t, []string{"Recursion", "Sorting"}, got.CommonTopics)
	assert.Equal(t, []string{"Add more practice on pointers"}, got.Recommendations)
}

func TestExtractSections_BoldHeadingsBulletsAndInline(t *testing.T) {
	text := "**Strengths**\n" +
		"- Good grasp of variables\n" +
		"• Confident with functions\n\n" +
		"**Weaknesses**: struggles with recursion depth\n\n" +
		"**Common Topics** - arrays, recursion\n\n" +
		"**Recommendations**\n" +
		"* Schedule a review session\n"

	got := ExtractSections(text)

	assert.Equal(t, []string{"Good grasp of variables", "Confident with functions"}, got.Strengths)
	assert.Equal(t, []string{"struggles with recursion depth"}, got.Weaknesses)
	assert.Equal(t, []string{"arrays, recursion"}, got.CommonTopics)
	assert.Equal(t, []string{"Schedule a review session"}, got.Recommendations)
}

func TestExtractSections_NumberedHeadingsWithNestedBullets(t *testing.T) {
	text := "1. **Student Strengths**: \n" +
		"   - Loops\n" +
		"   - Conditionals\n" +
		"2. **Student Weaknesses**:\n" +
		"   - Recursion\n"

	got := ExtractSections(text)

	assert.Equal(t, []string{"Loops", "Conditionals"}, got.Strengths)
	assert.Equal(t, []string{"Recursion"}, got.Weaknesses)
	assert.Empty(t, got.CommonTopics)
	assert.Empty(t, got.Recommendations)
}

func TestExtractSections_NoHeadings(t *testing.T) {
	got := ExtractSections("Students showed strengths in loops and asked many questions.")

	assert.NotNil(t, got.Strengths)
	assert.Empty(t, got.Strengths)
	assert.Empty(t, got.Weaknesses)
	assert.Empty(t, got.CommonTopics)
	assert.Empty(t, got.Recommendations)
}

func TestExtractSections_CRLF(t *testing.T) {
	got := ExtractSections("Recommendations\r\n- Review loops\r\n")

	assert.Equal(t, []string{"Review loops"}, got.Recommendations)
}

func TestExtractSections_NumberInsideBoldHeading(t *testing.T) {
	text := "**1. Student Strengths**\n- Loops\n\n" +
		"**2. Student Weaknesses**\n- Recursion\n\n" +
		"__3) Common Topics__\n- Sorting\n\n" +
		"**4. Recommendations**\n- Practice\n"

	got := ExtractSections(text)

	assert.Equal(t, []string{"Loops"}, got.Strengths)
	assert.Equal(t, []string{"Recursion"}, got.Weaknesses)
	assert.Equal(t, []string{"Sorting"}, got.CommonTopics)
	assert.Equal(t, []string{"Practice"}, got.Recommendations)
}

func TestExtractSections_DashHeadings(t *testing.T) {
	text := "Strengths - steady progress on loops\n\n" +
		"Recommendations -\n - practice recursion\n - pair review\n"

	got := ExtractSections(text)

	assert.Equal(t, []string{"steady progress on loops"}, got.Strengths)
	assert.Equal(t, []string{"practice recursion", "pair review"}, got.Recommendations)
}
