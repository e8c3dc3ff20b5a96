package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BadgeKind names one of the quest badges.
type BadgeKind string

const (
	BadgeNovice   BadgeKind = "novice"
	BadgeLoyalist BadgeKind = "loyalist"
	BadgeWhale    BadgeKind = "whale"
)

// BadgeKinds lists the badges in display order.
var BadgeKinds = []BadgeKind{BadgeNovice, BadgeLoyalist, BadgeWhale}

// UserStats mirrors QuestManager.getUserStats.
type UserStats struct {
	TotalWins *big.Int
	WinStreak *big.Int
}

// IQuestManager is the read-only quest and badge registry.
type IQuestManager interface {
	// Maps to: getUserStats(address)
	GetUserStats(ctx context.Context, user common.Address) (UserStats, error)
	// Maps to: noviceBadge() / loyalistBadge() / whaleBadge()
	BadgeAddress(ctx context.Context, kind BadgeKind) (common.Address, error)
	// Maps to: hasBadge(address,address)
	HasBadge(ctx context.Context, user common.Address, badge common.Address) (bool, error)

	Address() common.Address
}

// QuestSnapshot mirrors quest progress for one account.
type QuestSnapshot struct {
	Stats          *UserStats
	BadgeAddresses map[BadgeKind]common.Address
	Badges         map[BadgeKind]bool
}
