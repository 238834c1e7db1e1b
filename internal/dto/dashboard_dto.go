package dto

// Dashboard actions offered on list items.
const (
	ActionDelete = "delete"
	ActionRemove = "remove"
)

// DashboardView is the full state rendered by a dashboard client.
type DashboardView struct {
	State           string        `json:"state"`
	Email           string        `json:"email,omitempty"`
	Role            string        `json:"role,omitempty"`
	Visible         Visibility    `json:"visible"`
	TeacherHomework ItemList      `json:"teacher_homework"`
	Classes         []ClassRow    `json:"classes"`
	ClassOptions    []ClassOption `json:"class_options"`
	StudentHomework ItemList      `json:"student_homework"`
	Error           *ViewError    `json:"error,omitempty"`
	Version         uint64        `json:"version"`
}

// Visibility flags which dashboard sections are shown.
type Visibility struct {
	Auth      bool `json:"auth"`
	Dashboard bool `json:"dashboard"`
	Teacher   bool `json:"teacher"`
	Student   bool `json:"student"`
}

// ItemList is an ordered list, or a placeholder when there is nothing to show yet.
type ItemList struct {
	Items       []ListItem `json:"items"`
	Placeholder string     `json:"placeholder,omitempty"`
}

// ListItem is one rendered record with the actions available on it.
type ListItem struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Actions []string `json:"actions"`
}

// ClassRow is one row of the teacher class table.
type ClassRow struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Students string     `json:"students"`
	Roster   []ListItem `json:"roster"`
	Actions  []string   `json:"actions"`
}

// ClassOption is an entry of the class selector.
type ClassOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ViewError is the last error surfaced to the dashboard.
type ViewError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (v DashboardView) Clone() DashboardView {
	out := v
	out.TeacherHomework = v.TeacherHomework.clone()
	out.StudentHomework = v.StudentHomework.clone()
	out.ClassOptions = append([]ClassOption{}, v.ClassOptions...)
	out.Classes = make([]ClassRow, len(v.Classes))
	for i, row := range v.Classes {
		row.Roster = cloneItems(row.Roster)
		row.Actions = append([]string{}, row.Actions...)
		out.Classes[i] = row
	}
	if v.Error != nil {
		errCopy := *v.Error
		out.Error = &errCopy
	}
	return out
}

func (l ItemList) clone() ItemList {
	return ItemList{Items: cloneItems(l.Items), Placeholder: l.Placeholder}
}

func cloneItems(items []ListItem) []ListItem {
	out := make([]ListItem, len(items))
	for i, item := range items {
		item.Actions = append([]string{}, item.Actions...)
		out[i] = item
	}
	return out
}
