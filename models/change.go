package models

// ChangeKind names the counter a delta applies to.
type ChangeKind string

const (
	ChangeLife            ChangeKind = "life"
	ChangeCommanderDamage ChangeKind = "commanderDamage"
	ChangePoison          ChangeKind = "poisonCounters"
)

func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeLife, ChangeCommanderDamage, ChangePoison:
		return true
	}
	return false
}
