package service

import (
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

// HomeworkProjection renders the homework lists of a dashboard. Teachers see
// what they assigned; students see homework of the classes they belong to, or
// everything when visibility is global.
//
// All methods run on the task queue.
type HomeworkProjection struct {
	feed       *feed
	view       *View
	visibility string
	logger     zerolog.Logger

	homework        []models.Homework
	homeworkLoaded  bool
	membership      Membership
	membershipKnown bool
}

func newHomeworkProjection(f *feed, view *View, visibility string, logger zerolog.Logger) *HomeworkProjection {
	return &HomeworkProjection{
		feed:       f,
		view:       view,
		visibility: visibility,
		logger:     logger.With().Str("component", "homework_projection").Logger(),
	}
}

// ActivateTeacher subscribes to the homework assigned by teacher.
func (p *HomeworkProjection) ActivateTeacher(teacher models.Principal) error {
	p.reset()
	p.view.Update(func(view *dto.DashboardView) {
		view.TeacherHomework = loadingList()
	})

	filters := []store.Filter{store.Where("assignedBy", teacher.ID)}
	return p.feed.open(SlotHomework, store.CollectionHomeworks, filters, func(_ Token, snapshot store.Snapshot) {
		items := make([]dto.ListItem, 0, len(snapshot.Documents))
		for _, homework := range p.decode(snapshot) {
			items = append(items, dto.ListItem{
				ID:      homework.ID,
				Text:    homeworkText(homework),
				Actions: []string{dto.ActionDelete},
			})
		}

		list := dto.ItemList{Items: items}
		if len(items) == 0 {
			list.Placeholder = PlaceholderNoTeacherWork
		}
		p.view.Update(func(view *dto.DashboardView) {
			view.TeacherHomework = list
		})
	}, p.fail)
}

// ActivateStudent subscribes to all homework. Until the membership is known
// the class-scoped list keeps showing the loading placeholder.
func (p *HomeworkProjection) ActivateStudent() error {
	p.reset()
	p.view.Update(func(view *dto.DashboardView) {
		view.StudentHomework = loadingList()
	})

	return p.feed.open(SlotHomework, store.CollectionHomeworks, nil, func(_ Token, snapshot store.Snapshot) {
		p.homework = p.decode(snapshot)
		p.homeworkLoaded = true
		p.renderStudent()
	}, p.fail)
}

// SetMembership updates the class set used to filter the student list.
func (p *HomeworkProjection) SetMembership(membership Membership) {
	p.membership = membership
	p.membershipKnown = true
	p.renderStudent()
}

func (p *HomeworkProjection) renderStudent() {
	list := p.studentList()
	p.view.Update(func(view *dto.DashboardView) {
		view.StudentHomework = list
	})
}

func (p *HomeworkProjection) studentList() dto.ItemList {
	global := p.visibility == config.VisibilityGlobal

	if !global && p.membershipKnown && len(p.membership) == 0 {
		return dto.ItemList{Items: []dto.ListItem{}, Placeholder: PlaceholderNotInClass}
	}
	if !p.homeworkLoaded || (!global && !p.membershipKnown) {
		return loadingList()
	}

	items := make([]dto.ListItem, 0, len(p.homework))
	for _, homework := range p.homework {
		if !global && !p.membership.Has(homework.ClassID) {
			continue
		}
		items = append(items, dto.ListItem{
			ID:      homework.ID,
			Text:    homeworkText(homework),
			Actions: []string{},
		})
	}

	list := dto.ItemList{Items: items}
	if len(items) == 0 {
		list.Placeholder = PlaceholderNoStudentWork
	}
	return list
}

func (p *HomeworkProjection) decode(snapshot store.Snapshot) []models.Homework {
	result := make([]models.Homework, 0, len(snapshot.Documents))
	for _, doc := range snapshot.Documents {
		var homework models.Homework
		if err := doc.Decode(&homework); err != nil {
			p.logger.Warn().Err(err).Str("homework_id", doc.ID).Msg("skipping malformed homework")
			continue
		}
		homework.ID = doc.ID
		result = append(result, homework)
	}
	return result
}

func (p *HomeworkProjection) fail(err error) {
	p.logger.Warn().Err(err).Msg("homework query failed")
	p.view.Update(func(view *dto.DashboardView) {
		setViewError(view, err)
	})
}

func (p *HomeworkProjection) reset() {
	p.homework = nil
	p.homeworkLoaded = false
	p.membership = nil
	p.membershipKnown = false
}

func homeworkText(homework models.Homework) string {
	return homework.Title + homeworkTextSeparator + homework.Description
}
