package main

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
)

type subjectWriter interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, subject *models.Subject) error
}

type resourceWriter interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, resource *models.Resource) error
}

type classWriter interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, class *models.ClassGroup) error
}

type facultyWriter interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, member *models.Faculty) error
}

// catalogImporter writes a dataset into the catalog tables. Subjects go first
// so faculty subject lists always reference stored rows.
type catalogImporter struct {
	subjects  subjectWriter
	resources resourceWriter
	classes   classWriter
	faculty   facultyWriter
}

func (i catalogImporter) Import(ctx context.Context, exec sqlx.ExtContext, in scheduler.Input) error {
	for idx := range in.Subjects {
		if err := i.subjects.Upsert(ctx, exec, &in.Subjects[idx]); err != nil {
			return err
		}
	}
	for idx := range in.Resources {
		if err := i.resources.Upsert(ctx, exec, &in.Resources[idx]); err != nil {
			return err
		}
	}
	for idx := range in.Classes {
		if err := i.classes.Upsert(ctx, exec, &in.Classes[idx]); err != nil {
			return err
		}
	}
	for idx := range in.Faculty {
		if err := i.faculty.Upsert(ctx, exec, &in.Faculty[idx]); err != nil {
			return err
		}
	}
	return nil
}
