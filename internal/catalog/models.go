package catalog

// NumChoices is fixed for the supported question format: every question has
// exactly four choices keyed 0..3.
const NumChoices = 4

// Question choices are keyed by index rather than stored positionally, matching
// the question-bank layout where the key is stable even if entries are
// reordered by authoring tools.
type Question struct {
	Number        int            `json:"number"`
	Text          string         `json:"text"`
	Choices       map[int]string `json:"choices"`
	CorrectAnswer int            `json:"correct_answer"`
	Explanation   string         `json:"explanation,omitempty"`
}

type Test struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	Questions       []Question `json:"questions"`

	CreatedAt int64 `json:"created_at,omitempty"`
}

// Summary is the listing view of a test, without question bodies.
type Summary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Subject         string `json:"subject,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	TotalQuestions  int    `json:"total_questions"`
}

// Question returns the question with the given stable number, if present.
// Numbers are the key, not the slice index: views may filter or reorder.
func (t Test) Question(number int) (Question, bool) {
	for _, q := range t.Questions {
		if q.Number == number {
			return q, true
		}
	}
	return Question{}, false
}

func (t Test) HasQuestion(number int) bool {
	_, ok := t.Question(number)
	return ok
}

// StudentView returns a copy safe to serve to test takers: correct answers and
// explanations stripped, choices left intact.
func (t Test) StudentView() Test {
	out := t
	out.Questions = make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		q.CorrectAnswer = -1
		q.Explanation = ""
		out.Questions[i] = q
	}
	return out
}

func (t Test) Summary() Summary {
	return Summary{
		ID:              t.ID,
		Title:           t.Title,
		Subject:         t.Subject,
		DurationSeconds: t.DurationSeconds,
		TotalQuestions:  len(t.Questions),
	}
}
