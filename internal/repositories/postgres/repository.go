package postgres

import (
	"context"

	"github.com/teamhub/assessment-engine/internal/repositories"
	"gorm.io/gorm"
)

type postgresRepository struct {
	db *gorm.DB

	test         repositories.TestRepository
	question     repositories.QuestionRepository
	assignment   repositories.AssignmentRepository
	attempt      repositories.AttemptRepository
	answer       repositories.AnswerRepository
	proctorEvent repositories.ProctorEventRepository
	suggestion   repositories.SuggestionRepository
	directory    repositories.DirectoryRepository
}

// NewRepository wires all gorm-backed repositories over one connection
func NewRepository(db *gorm.DB) repositories.Repository {
	return &postgresRepository{
		db:           db,
		test:         NewTestPostgreSQL(db),
		question:     NewQuestionPostgreSQL(db),
		assignment:   NewAssignmentPostgreSQL(db),
		attempt:      NewAttemptPostgreSQL(db),
		answer:       NewAnswerPostgreSQL(db),
		proctorEvent: NewProctorEventPostgreSQL(db),
		suggestion:   NewSuggestionPostgreSQL(db),
		directory:    NewDirectoryPostgreSQL(db),
	}
}

func (r *postgresRepository) Test() repositories.TestRepository             { return r.test }
func (r *postgresRepository) Question() repositories.QuestionRepository     { return r.question }
func (r *postgresRepository) Assignment() repositories.AssignmentRepository { return r.assignment }
func (r *postgresRepository) Attempt() repositories.AttemptRepository       { return r.attempt }
func (r *postgresRepository) Answer() repositories.AnswerRepository         { return r.answer }
func (r *postgresRepository) ProctorEvent() repositories.ProctorEventRepository {
	return r.proctorEvent
}
func (r *postgresRepository) Suggestion() repositories.SuggestionRepository { return r.suggestion }
func (r *postgresRepository) Directory() repositories.DirectoryRepository   { return r.directory }

func (r *postgresRepository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
