package contractsapi

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/contracts"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
)

// QuestManager reads quest stats and badge ownership. It has no write surface.
type QuestManager struct {
	c *contract
}

var _ types.IQuestManager = (*QuestManager)(nil)

type NewQuestManagerOptions struct {
	Transport types.Transport
	Address   common.Address
}

func LoadQuestManager(options NewQuestManagerOptions) (*QuestManager, error) {
	parsed, err := contracts.QuestManagerABI()
	if err != nil {
		return nil, err
	}
	c, err := newContract("questManager", options.Address, parsed, options.Transport)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &QuestManager{c: c}, nil
}

func (q *QuestManager) Address() common.Address { return q.c.address }

var badgeGetters = map[types.BadgeKind]string{
	types.BadgeNovice:   "noviceBadge",
	types.BadgeLoyalist: "loyalistBadge",
	types.BadgeWhale:    "whaleBadge",
}

func (q *QuestManager) GetUserStats(ctx context.Context, user common.Address) (types.UserStats, error) {
	out, err := q.c.call(ctx, "getUserStats", user)
	if err != nil {
		return types.UserStats{}, err
	}
	if len(out) != 2 {
		return types.UserStats{}, fmt.Errorf("getUserStats: expected 2 outputs, got %d", len(out))
	}
	wins, err := extractBigInt(out[0], "getUserStats")
	if err != nil {
		return types.UserStats{}, err
	}
	streak, err := extractBigInt(out[1], "getUserStats")
	if err != nil {
		return types.UserStats{}, err
	}
	return types.UserStats{TotalWins: wins, WinStreak: streak}, nil
}

func (q *QuestManager) BadgeAddress(ctx context.Context, kind types.BadgeKind) (common.Address, error) {
	method, ok := badgeGetters[kind]
	if !ok {
		return common.Address{}, fmt.Errorf("unknown badge %q", kind)
	}
	out, err := q.c.callOne(ctx, method)
	if err != nil {
		return common.Address{}, err
	}
	return extractAddress(out, method)
}

func (q *QuestManager) HasBadge(ctx context.Context, user common.Address, badge common.Address) (bool, error) {
	out, err := q.c.callOne(ctx, "hasBadge", user, badge)
	if err != nil {
		return false, err
	}
	return extractBool(out, "hasBadge")
}
