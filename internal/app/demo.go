package app

import (
	"context"

	"dbfactory/internal/dbfactory"
	"dbfactory/internal/example/quiz"
)

// DemoResult is what RunDemo observed through the read-only factory.
type DemoResult struct {
	QuizID    int64
	Title     string
	Quizzes   int64
	Questions int
	Correct   int
}

var demoQuestions = []struct {
	text    string
	answers []string
	correct int
}{
	{"Which keyword starts a goroutine?", []string{"go", "async", "spawn"}, 0},
	{"What does defer run on?", []string{"panic only", "function return", "loop exit"}, 1},
}

// RunDemo writes a quiz with its questions in one transaction, commits, and
// reads it back through a read-only factory.
func RunDemo(ctx context.Context, p *Provider, title string) (res DemoResult, err error) {
	id, err := seedQuiz(ctx, p, title)
	if err != nil {
		return DemoResult{}, err
	}

	f, err := p.ReadOnly(ctx)
	if err != nil {
		return DemoResult{}, err
	}
	defer f.DisposeInto(&err)

	qc, err := dbfactory.ContextFor[*quiz.Context](f)
	if err != nil {
		return DemoResult{}, err
	}
	q, err := qc.Quizzes.Find(ctx, id)
	if err != nil {
		return DemoResult{}, err
	}
	total, err := qc.Quizzes.Count(ctx)
	if err != nil {
		return DemoResult{}, err
	}
	questions, err := qc.QuestionsOf(ctx, id)
	if err != nil {
		return DemoResult{}, err
	}
	res = DemoResult{QuizID: q.ID, Title: q.Title, Quizzes: total, Questions: len(questions)}
	for _, question := range questions {
		correct, err := qc.CorrectAnswers(ctx, question.ID)
		if err != nil {
			return DemoResult{}, err
		}
		res.Correct += len(correct)
	}
	return res, nil
}

// seedQuiz saves the quiz first so its generated key can be used by the
// questions, then the questions, then their answers.
func seedQuiz(ctx context.Context, p *Provider, title string) (id int64, err error) {
	f, err := p.Transactional(ctx)
	if err != nil {
		return 0, err
	}
	defer f.DisposeInto(&err)

	qc, err := dbfactory.ContextFor[*quiz.Context](f)
	if err != nil {
		return 0, err
	}

	q := &quiz.Quiz{Title: title, Description: "generated by the demo command"}
	if err := qc.Quizzes.Add(q); err != nil {
		return 0, err
	}
	if _, err := qc.SaveChanges(ctx); err != nil {
		return 0, err
	}

	questions := make([]*quiz.Question, len(demoQuestions))
	for i, d := range demoQuestions {
		questions[i] = &quiz.Question{QuizID: q.ID, Text: d.text, Position: i + 1}
		if err := qc.Questions.Add(questions[i]); err != nil {
			return 0, err
		}
	}
	if _, err := qc.SaveChanges(ctx); err != nil {
		return 0, err
	}

	for i, d := range demoQuestions {
		for j, text := range d.answers {
			a := &quiz.Answer{QuestionID: questions[i].ID, Text: text, Correct: j == d.correct}
			if err := qc.Answers.Add(a); err != nil {
				return 0, err
			}
		}
	}
	if _, err := qc.SaveChanges(ctx); err != nil {
		return 0, err
	}

	if f.Ephemeral() {
		return q.ID, nil
	}
	return q.ID, f.Commit()
}
