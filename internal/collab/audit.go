package collab

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/knmi/sdsrules/pkg/errs"
)

// ruleRunModel is the GORM record for one (item, rule) execution, following
// the teacher module's db/postgres.go pattern of an embedded gorm.Model plus
// plain columns rather than a hand-rolled SQL repository.
type ruleRunModel struct {
	gorm.Model
	RuleName    string
	Filename    string
	Outcome     string
	Detail      string
	DurationMS  int64
	OccurredAt  time.Time
}

func (ruleRunModel) TableName() string { return "rule_runs" }

// PostgresAudit is a RunAudit backed by PostgreSQL via GORM, adapted from
// the teacher module's db/postgres.go connection setup.
type PostgresAudit struct {
	db *gorm.DB
}

// NewPostgresAudit opens the connection and migrates the rule_runs table.
func NewPostgresAudit(dsn string) (*PostgresAudit, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", errs.ErrIoError, err)
	}
	if err := db.AutoMigrate(&ruleRunModel{}); err != nil {
		return nil, fmt.Errorf("%w: migrate rule_runs: %v", errs.ErrIoError, err)
	}
	return &PostgresAudit{db: db}, nil
}

// SaveRun persists one rule execution record.
func (a *PostgresAudit) SaveRun(ctx context.Context, run RuleRun) error {
	model := ruleRunModel{
		RuleName:   run.RuleName,
		Filename:   run.Filename,
		Outcome:    run.Outcome,
		Detail:     run.Detail,
		DurationMS: run.Duration.Milliseconds(),
		OccurredAt: run.Occurred,
	}
	if err := a.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("%w: insert rule run: %v", errs.ErrIoError, err)
	}
	return nil
}

// RunHistory returns the most recent executions of ruleName, newest first.
func (a *PostgresAudit) RunHistory(ctx context.Context, ruleName string, limit int) ([]RuleRun, error) {
	var models []ruleRunModel
	err := a.db.WithContext(ctx).
		Where("rule_name = ?", ruleName).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query rule runs: %v", errs.ErrIoError, err)
	}

	out := make([]RuleRun, 0, len(models))
	for _, m := range models {
		out = append(out, RuleRun{
			RuleName: m.RuleName,
			Filename: m.Filename,
			Outcome:  m.Outcome,
			Detail:   m.Detail,
			Duration: time.Duration(m.DurationMS) * time.Millisecond,
			Occurred: m.OccurredAt,
		})
	}
	return out, nil
}
