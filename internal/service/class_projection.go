package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

// ClassProjection renders the class table and class selector of a teacher.
// Rosters are loaded by one fan-out per class snapshot; rows show the loading
// placeholder until it completes.
type ClassProjection struct {
	feed   *feed
	view   *View
	logger zerolog.Logger
}

type roster struct {
	text    string
	entries []dto.ListItem
}

func newClassProjection(f *feed, view *View, logger zerolog.Logger) *ClassProjection {
	return &ClassProjection{
		feed:   f,
		view:   view,
		logger: logger.With().Str("component", "class_projection").Logger(),
	}
}

// Activate subscribes to the classes owned by teacher.
func (p *ClassProjection) Activate(teacher models.Principal) error {
	filters := []store.Filter{store.Where("ownerId", teacher.ID)}
	return p.feed.open(SlotClass, store.CollectionClasses, filters, p.render, p.fail)
}

func (p *ClassProjection) render(token Token, snapshot store.Snapshot) {
	rows := make([]dto.ClassRow, 0, len(snapshot.Documents))
	options := make([]dto.ClassOption, 0, len(snapshot.Documents))
	for _, doc := range snapshot.Documents {
		var class models.ClassGroup
		if err := doc.Decode(&class); err != nil {
			p.logger.Warn().Err(err).Str("class_id", doc.ID).Msg("skipping malformed class")
			continue
		}
		rows = append(rows, dto.ClassRow{
			ID:       doc.ID,
			Name:     class.Name,
			Students: PlaceholderLoading,
			Roster:   []dto.ListItem{},
			Actions:  []string{dto.ActionDelete},
		})
		options = append(options, dto.ClassOption{ID: doc.ID, Name: class.Name})
	}

	p.view.Update(func(view *dto.DashboardView) {
		view.Classes = rows
		view.ClassOptions = options
	})

	if len(rows) == 0 {
		return
	}

	fanOut, ok := p.feed.registry.BeginFanOut(token)
	if !ok {
		return
	}

	classIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		classIDs = append(classIDs, row.ID)
	}

	go func() {
		ctx, cancel := p.feed.requestContext(context.Background())
		rosters, err := p.loadRosters(ctx, classIDs)
		cancel()

		p.feed.queue.Post("class_rosters", func() {
			if !p.feed.registry.Current(fanOut) {
				observability.StaleResults().WithLabelValues("roster").Inc()
				return
			}
			if err != nil {
				p.fail(err)
				return
			}
			p.view.Update(func(view *dto.DashboardView) {
				for i := range view.Classes {
					if loaded, ok := rosters[view.Classes[i].ID]; ok {
						view.Classes[i].Students = loaded.text
						view.Classes[i].Roster = loaded.entries
					}
				}
			})
		})
	}()
}

func (p *ClassProjection) loadRosters(ctx context.Context, classIDs []string) (map[string]roster, error) {
	started := time.Now()
	defer func() {
		observability.FanOutDuration().WithLabelValues("roster").Observe(time.Since(started).Seconds())
	}()

	loaded := make([]roster, len(classIDs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, classID := range classIDs {
		i, classID := i, classID
		group.Go(func() error {
			docs, err := p.feed.store.List(groupCtx, store.StudentsOf(classID))
			if err != nil {
				return err
			}
			loaded[i] = p.buildRoster(classID, docs)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, backendError("Error loading students", err)
	}

	result := make(map[string]roster, len(classIDs))
	for i, classID := range classIDs {
		result[classID] = loaded[i]
	}
	return result, nil
}

func (p *ClassProjection) buildRoster(classID string, docs []store.Document) roster {
	emails := make([]string, 0, len(docs))
	entries := make([]dto.ListItem, 0, len(docs))
	for _, doc := range docs {
		var enrollment models.Enrollment
		if err := doc.Decode(&enrollment); err != nil {
			p.logger.Warn().Err(err).Str("class_id", classID).Str("student_id", doc.ID).Msg("skipping malformed enrollment")
			continue
		}
		emails = append(emails, enrollment.Email)
		entries = append(entries, dto.ListItem{
			ID:      doc.ID,
			Text:    enrollment.Email,
			Actions: []string{dto.ActionRemove},
		})
	}
	if len(entries) == 0 {
		return roster{text: PlaceholderNoStudents, entries: []dto.ListItem{}}
	}
	return roster{text: strings.Join(emails, rosterSeparator), entries: entries}
}

func (p *ClassProjection) fail(err error) {
	p.logger.Warn().Err(err).Msg("class query failed")
	p.view.Update(func(view *dto.DashboardView) {
		setViewError(view, err)
	})
}
