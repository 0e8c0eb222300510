package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"aicoo/internal/config"
	"aicoo/internal/db"
	"aicoo/internal/events"
	"aicoo/internal/insight"
	"aicoo/internal/planner"
	"aicoo/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Planner  *planner.Planner
	Advisors insight.Advisors
	Now      func() time.Time

	runs *sync.WaitGroup
}

func New(conn *sql.DB, cfg *config.Config, p *planner.Planner) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	dialect := db.Config{Driver: cfg.Database.Driver}.Dialect()
	if p == nil {
		p = planner.New(planner.Disabled{}, cfg.LLM.Timeout, cfg.LLM.MaxTokens)
	}
	return Engine{
		DB:       conn,
		Repo:     repo.Repo{DB: conn, Dialect: dialect},
		Events:   events.Writer{DB: conn, Dialect: dialect},
		Config:   cfg,
		Planner:  p,
		Advisors: insight.NewAdvisors(),
		Now:      time.Now,
		runs:     &sync.WaitGroup{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Wait blocks until background task runs have finished.
func (e Engine) Wait() {
	if e.runs != nil {
		e.runs.Wait()
	}
}

func newID() string {
	return uuid.NewString()
}

// ValidationError reports bad caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return ValidationError{Field: field, Message: msg}
}

// ErrPrerequisiteCycle is returned when a prerequisite chain would loop back on itself.
var ErrPrerequisiteCycle = errors.New("prerequisite cycle detected")

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
}

// scoped turns a bare repo.ErrNotFound into one naming the entity.
func scoped(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(kind, id)
	}
	return err
}
