package http

import (
	"html/template"

	"leadboard/internal/core"
	"leadboard/internal/explorer"
)

var templateFuncs = template.FuncMap{
	"amount": core.FormatAmount,
	"nodeID": nodeID,
}

type pageView struct {
	Error      string
	Months     []monthView
	Weeks      []core.Week
	Sources    []core.Source
	Categories []core.Category
}

type monthView struct {
	Label string
	Weeks []weekView
}

type weekView struct {
	ID      int64
	Label   string
	Open    bool
	Sources []sourceView
}

type sourceView struct {
	WeekID     int64
	ID         int64
	Name       string
	Open       bool
	Categories []leafView
}

type leafView struct {
	WeekID   int64
	SourceID int64
	ID       int64
	Name     string
	Open     bool
	Loading  bool
	Loaded   bool
	Error    string
	Records  []core.LeadMetric
	Amount   int64
	Leads    int64
}

func weekLabel(w core.Week) string {
	return w.StartDate.Display() + " - " + w.EndDate.Display()
}

// The builders below read the explorer once per node. Children are only
// built for open nodes.

func buildPage(ex *explorer.Explorer, loadErr string) pageView {
	p := pageView{
		Error:      loadErr,
		Sources:    ex.Sources(),
		Categories: ex.Categories(),
	}
	for _, b := range ex.Months() {
		mv := monthView{Label: b.Label()}
		for _, w := range b.Weeks {
			mv.Weeks = append(mv.Weeks, buildWeek(ex, w))
			p.Weeks = append(p.Weeks, w)
		}
		p.Months = append(p.Months, mv)
	}
	return p
}

func buildWeek(ex *explorer.Explorer, w core.Week) weekView {
	v := weekView{ID: w.ID, Label: weekLabel(w), Open: ex.IsOpen(explorer.WeekKey(w.ID))}
	if !v.Open {
		return v
	}
	for _, s := range ex.Sources() {
		v.Sources = append(v.Sources, buildSource(ex, w.ID, s))
	}
	return v
}

func buildSource(ex *explorer.Explorer, weekID int64, s core.Source) sourceView {
	v := sourceView{WeekID: weekID, ID: s.ID, Name: s.Name, Open: ex.IsOpen(explorer.SourceKey(weekID, s.ID))}
	if !v.Open {
		return v
	}
	for _, c := range ex.Categories() {
		v.Categories = append(v.Categories, buildLeaf(ex, weekID, s.ID, c, ""))
	}
	return v
}

func buildLeaf(ex *explorer.Explorer, weekID, sourceID int64, c core.Category, loadErr string) leafView {
	k := explorer.LeafKey(weekID, sourceID, c.ID)
	v := leafView{
		WeekID:   weekID,
		SourceID: sourceID,
		ID:       c.ID,
		Name:     c.Name,
		Open:     ex.IsOpen(k),
		Loading:  ex.Loading(k),
		Error:    loadErr,
	}
	v.Records, v.Loaded = ex.Bucket(weekID, sourceID, c.ID)
	for _, m := range v.Records {
		v.Amount += m.Amount
		v.Leads += m.LeadsCount
	}
	return v
}
