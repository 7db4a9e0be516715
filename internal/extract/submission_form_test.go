package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSubmissionForm(t *testing.T) {
	html := `<html><body>
<form id="submit_quiz_form" action="/courses/1/quizzes/2/submit" method="post">
  <input type="hidden" name="authenticity_token" value="tok==">
  <input type="hidden" name="validation_token" value="v123">
  <input type="hidden" name="attempt" value="1">
  <input type="text" name="question_101" value="not-hidden">
</form>
</body></html>`
	doc := parseDoc(t, html, "https://canvas.example.edu/courses/1/quizzes/2/take")

	form, err := ExtractSubmissionForm(doc)
	require.NoError(t, err)

	assert.Equal(t, "https://canvas.example.edu/courses/1/quizzes/2/submit", form.Action)
	assert.Equal(t, "tok==", form.Hidden.Get("authenticity_token"))
	assert.Equal(t, "v123", form.Hidden.Get("validation_token"))
	assert.Equal(t, "1", form.Hidden.Get("attempt"))
	// 只收隐藏字段
	assert.Empty(t, form.Hidden.Get("question_101"))
}

func TestExtractSubmissionFormKeepsDuplicateHiddenFields(t *testing.T) {
	html := `<form id="submit_quiz_form" action="/submit">
  <input type="hidden" name="ids[]" value="1">
  <input type="hidden" name="ids[]" value="2">
  <input type="hidden" name="attempt" value="1">
</form>`
	doc := parseDoc(t, html, "https://canvas.example.edu/courses/1/quizzes/2/take")

	form, err := ExtractSubmissionForm(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, form.Hidden["ids[]"])
}

func TestExtractSubmissionFormMissing(t *testing.T) {
	doc := parseDoc(t, `<html><body><div id="questions"></div></body></html>`, "")
	_, err := ExtractSubmissionForm(doc)
	assert.Error(t, err)
}
