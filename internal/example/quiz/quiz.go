// Package quiz is a small quiz schema with a typed persistence context. It
// is used by the CLI demo and by the scenario tests of the factory.
package quiz

import (
	"context"
	"embed"

	sq "github.com/Masterminds/squirrel"

	"dbfactory/internal/dbfactory"
)

// Migrations holds the schema for both engines.
//
//go:embed migrations
var Migrations embed.FS

// Migration directories inside Migrations.
const (
	SQLiteDir   = "migrations/sqlite"
	PostgresDir = "migrations/postgres"
)

// Quiz is a row of the quizzes table.
type Quiz struct {
	ID          int64  `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
}

// Question is a row of the questions table.
type Question struct {
	ID       int64  `db:"id"`
	QuizID   int64  `db:"quiz_id"`
	Text     string `db:"text"`
	Position int    `db:"position"`
}

// Answer is a row of the answers table.
type Answer struct {
	ID         int64  `db:"id"`
	QuestionID int64  `db:"question_id"`
	Text       string `db:"text"`
	Correct    bool   `db:"correct"`
}

// Context is the typed persistence context of the quiz schema.
type Context struct {
	*dbfactory.Context

	Quizzes   *dbfactory.Set[Quiz]
	Questions *dbfactory.Set[Question]
	Answers   *dbfactory.Set[Answer]
}

// NewContext binds the quiz sets to c. It is the constructor registered with
// the factory builders.
func NewContext(c *dbfactory.Context) *Context {
	return &Context{
		Context:   c,
		Quizzes:   dbfactory.NewSet[Quiz](c, "quizzes"),
		Questions: dbfactory.NewSet[Question](c, "questions"),
		Answers:   dbfactory.NewSet[Answer](c, "answers"),
	}
}

// Register adds the quiz context to b.
func Register(b *dbfactory.Builders) error {
	return dbfactory.Register(b, NewContext)
}

// QuestionsOf loads the questions of a quiz in position order.
func (c *Context) QuestionsOf(ctx context.Context, quizID int64) ([]*Question, error) {
	var out []*Question
	err := c.Select(ctx, &out,
		c.Conn().Raw().Rebind("SELECT id, quiz_id, text, position FROM questions WHERE quiz_id = ? ORDER BY position, id"),
		quizID)
	return out, err
}

// CorrectAnswers loads the correct answers of a question.
func (c *Context) CorrectAnswers(ctx context.Context, questionID int64) ([]*Answer, error) {
	return c.Answers.Where(ctx, sq.Eq{"question_id": questionID, "correct": true})
}
