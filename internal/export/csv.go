package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/fedutinova/lectary/internal/job"
)

// FlashcardsCSV renders flashcards as a two-column CSV importable into
// spaced-repetition apps.
func FlashcardsCSV(cards []job.Flashcard) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"question", "answer"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, c := range cards {
		if err := w.Write([]string{c.Front, c.Back}); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// TestQuestionsCSV renders test questions with one column per option.
// Questions without exactly four options never survive sanitization, so the
// fixed layout is safe.
func TestQuestionsCSV(questions []job.TestQuestion) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"question", "option_a", "option_b", "option_c", "option_d", "answer", "explanation"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, q := range questions {
		row := []string{q.Question}
		for i := 0; i < 4; i++ {
			opt := ""
			if i < len(q.Options) {
				opt = q.Options[i]
			}
			row = append(row, opt)
		}
		row = append(row, q.Answer, q.Explanation)
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
