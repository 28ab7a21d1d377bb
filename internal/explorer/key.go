package explorer

import (
	"strconv"

	"leadboard/internal/core"
)

// Level is the depth of a node in the week → source → category tree.
type Level uint8

const (
	LevelWeek Level = iota + 1
	LevelSource
	LevelLeaf
)

func (l Level) String() string {
	switch l {
	case LevelWeek:
		return "week"
	case LevelSource:
		return "source"
	case LevelLeaf:
		return "leaf"
	default:
		return "invalid"
	}
}

// Key identifies a tree node. Keys are comparable values; two keys are
// equal only when their level and every id of that level match, so a
// week key can never collide with a week+source key.
type Key struct {
	level    Level
	week     int64
	source   int64
	category int64
}

func WeekKey(weekID int64) Key {
	return Key{level: LevelWeek, week: weekID}
}

func SourceKey(weekID, sourceID int64) Key {
	return Key{level: LevelSource, week: weekID, source: sourceID}
}

func LeafKey(weekID, sourceID, categoryID int64) Key {
	return Key{level: LevelLeaf, week: weekID, source: sourceID, category: categoryID}
}

// KeyOf returns the leaf key of the bucket a metric belongs to.
func KeyOf(m core.LeadMetric) Key {
	return LeafKey(m.WeekID, m.SourceID, m.CategoryID)
}

func (k Key) Level() Level { return k.level }
func (k Key) Week() int64 { return k.week }
func (k Key) Source() int64 { return k.source }
func (k Key) Category() int64 { return k.category }
func (k Key) IsZero() bool { return k.level == 0 }
func (k Key) IsLeaf() bool { return k.level == LevelLeaf }

// String renders the key with explicit field tags, e.g. "w:1/s:2/c:3".
func (k Key) String() string {
	b := make([]byte, 0, 32)
	switch k.level {
	case LevelLeaf:
		b = append(b, "w:"...)
		b = strconv.AppendInt(b, k.week, 10)
		b = append(b, "/s:"...)
		b = strconv.AppendInt(b, k.source, 10)
		b = append(b, "/c:"...)
		b = strconv.AppendInt(b, k.category, 10)
	case LevelSource:
		b = append(b, "w:"...)
		b = strconv.AppendInt(b, k.week, 10)
		b = append(b, "/s:"...)
		b = strconv.AppendInt(b, k.source, 10)
	case LevelWeek:
		b = append(b, "w:"...)
		b = strconv.AppendInt(b, k.week, 10)
	default:
		return "invalid"
	}
	return string(b)
}

// References reports whether the key is scoped under the given entity.
func (k Key) References(kind core.EntityKind, id int64) bool {
	switch kind {
	case core.EntityWeek:
		return k.level >= LevelWeek && k.week == id
	case core.EntitySource:
		return k.level >= LevelSource && k.source == id
	case core.EntityCategory:
		return k.level == LevelLeaf && k.category == id
	default:
		return false
	}
}
