package policy

// PointsPerLevel is the number of cumulative points per level step.
const PointsPerLevel = 100

const (
	RankNovice         = "Novice Recycler"
	RankEcoRookie      = "Eco Rookie"
	RankGreenGuardian  = "Green Guardian"
	RankEcoWarrior     = "Eco Warrior"
	RankMasterRecycler = "Master Recycler"
)

// Tier is a level together with its rank label.
type Tier struct {
	Level int
	Label string
}

// InitialTier is the tier of a freshly opened account that has never been credited.
func InitialTier() Tier {
	return Tier{Level: 1, Label: RankNovice}
}

// Rank derives the tier of a credited account from its cumulative points.
// Negative totals are treated as zero.
func Rank(totalPoints int64) Tier {
	if totalPoints < 0 {
		totalPoints = 0
	}
	level := int(totalPoints/PointsPerLevel) + 1
	switch {
	case level >= 10:
		return Tier{Level: level, Label: RankMasterRecycler}
	case level >= 5:
		return Tier{Level: level, Label: RankEcoWarrior}
	case level >= 3:
		return Tier{Level: level, Label: RankGreenGuardian}
	default:
		return Tier{Level: level, Label: RankEcoRookie}
	}
}

var labelOrder = map[string]int{
	RankNovice:         0,
	RankEcoRookie:      1,
	RankGreenGuardian:  2,
	RankEcoWarrior:     3,
	RankMasterRecycler: 4,
}

// Promoted reports whether next carries a higher rank label than prev.
func Promoted(prev, next Tier) bool {
	return labelOrder[next.Label] > labelOrder[prev.Label]
}
