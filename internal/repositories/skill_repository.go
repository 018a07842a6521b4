package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"skillswap-service/internal/models"
)

var ErrSkillNotFound = errors.New("skill not found")

// SkillRepository resolves the optional skill context attached to messages.
type SkillRepository interface {
	GetSkill(ctx context.Context, skillID string) (models.Skill, error)
}

// SkillRepo is a sqlx-backed repository.
type SkillRepo struct {
	db *sqlx.DB
}

// NewSkillRepo constructs SkillRepo.
func NewSkillRepo(db *sqlx.DB) *SkillRepo {
	return &SkillRepo{db: db}
}

// GetSkill fetches a skill by id.
func (r *SkillRepo) GetSkill(ctx context.Context, skillID string) (models.Skill, error) {
	var s models.Skill
	err := r.db.GetContext(ctx, &s, `SELECT id, owner_id, title, category FROM skills WHERE id=$1`, skillID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Skill{}, ErrSkillNotFound
	}
	return s, err
}
