package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/contractsapi"
	"github.com/onesafebet/sdk-go/core/ledgersync"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type QuestsOptions struct {
	Address  common.Address
	Interval time.Duration // 5s
}

// Quests mirrors the connected account's win statistics and badge ownership.
// It has no writes; stats move when the elemental game pays out.
type Quests struct {
	base
	api  *contractsapi.QuestManager
	opts QuestsOptions

	// badge contract addresses never change, they are read once
	badgeAddr map[types.BadgeKind]*ledgersync.Query[common.Address]

	mu    sync.RWMutex
	stats *ledgersync.Query[types.UserStats]
	owned map[types.BadgeKind]*ledgersync.Query[bool]
}

func NewQuests(deps Deps, opts QuestsOptions) (*Quests, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	api, err := contractsapi.LoadQuestManager(contractsapi.NewQuestManagerOptions{
		Transport: deps.Transport,
		Address:   opts.Address,
	})
	if err != nil {
		return nil, err
	}
	opts.Interval = orDefault(opts.Interval, 5*time.Second)

	q := &Quests{
		api:       api,
		opts:      opts,
		badgeAddr: make(map[types.BadgeKind]*ledgersync.Query[common.Address]),
		owned:     make(map[types.BadgeKind]*ledgersync.Query[bool]),
	}
	q.init("quests", deps, nil, nil)

	for _, kind := range types.BadgeKinds {
		kind := kind
		q.badgeAddr[kind], err = ledgersync.Subscribe(q.core.Poller, ledgersync.QuerySpec[common.Address]{
			Key:      "badge:" + string(kind),
			Endpoint: string(kind) + "Badge",
			Fetch: func(ctx context.Context) (common.Address, error) {
				return q.api.BadgeAddress(ctx, kind)
			},
			OnUpdate: func(common.Address) { q.kickOwned(kind) },
		})
		if err != nil {
			q.close()
			return nil, err
		}
	}
	q.watchSession(q.rebind)
	return q, nil
}

func (q *Quests) kickOwned(kind types.BadgeKind) {
	q.mu.RLock()
	owned := q.owned[kind]
	q.mu.RUnlock()
	if owned != nil {
		owned.Kick()
	}
}

func (q *Quests) badgeAddress(kind types.BadgeKind) (common.Address, bool) {
	return valueOf(q.badgeAddr[kind])
}

func (q *Quests) rebind() {
	acct, connected := q.account()

	q.mu.Lock()
	defer q.mu.Unlock()

	key := ""
	if connected {
		key = "stats:" + acct.Hex()
	}
	if q.stats != nil && q.stats.Key() == key {
		return
	}
	closeQuery(q.stats)
	q.stats = nil
	for kind, owned := range q.owned {
		closeQuery(owned)
		delete(q.owned, kind)
	}
	if !connected {
		return
	}

	bound := q.boundTo(acct)
	var err error
	q.stats, err = ledgersync.Subscribe(q.core.Poller, ledgersync.QuerySpec[types.UserStats]{
		Key:      key,
		Endpoint: "getUserStats",
		Interval: q.opts.Interval,
		Enabled:  bound,
		Fetch: func(ctx context.Context) (types.UserStats, error) {
			return q.api.GetUserStats(ctx, acct)
		},
	})
	if err != nil {
		q.logger.Warn("subscribe stats", zap.Error(err))
	}

	for _, kind := range types.BadgeKinds {
		kind := kind
		owned, err := ledgersync.Subscribe(q.core.Poller, ledgersync.QuerySpec[bool]{
			Key:      "hasBadge:" + string(kind) + ":" + acct.Hex(),
			Endpoint: "hasBadge",
			Interval: q.opts.Interval,
			Enabled: func() bool {
				_, known := q.badgeAddress(kind)
				return known && bound()
			},
			Fetch: func(ctx context.Context) (bool, error) {
				badge, ok := q.badgeAddress(kind)
				if !ok {
					return false, errors.Errorf("%s badge address not loaded", kind)
				}
				return q.api.HasBadge(ctx, acct, badge)
			},
		})
		if err != nil {
			q.logger.Warn("subscribe badge ownership", zap.String("badge", string(kind)), zap.Error(err))
			continue
		}
		q.owned[kind] = owned
	}
}

// Snapshot returns the mirrored stats and badges. Unread entries are absent.
func (q *Quests) Snapshot() types.QuestSnapshot {
	s := types.QuestSnapshot{
		BadgeAddresses: make(map[types.BadgeKind]common.Address),
		Badges:         make(map[types.BadgeKind]bool),
	}
	for _, kind := range types.BadgeKinds {
		if addr, ok := q.badgeAddress(kind); ok {
			s.BadgeAddresses[kind] = addr
		}
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if st, ok := valueOf(q.stats); ok {
		s.Stats = &st
	}
	for kind, owned := range q.owned {
		if has, ok := valueOf(owned); ok {
			s.Badges[kind] = has
		}
	}
	return s
}

// Refreshers returns the account-keyed queries. Badge addresses are left out
// since they never change.
func (q *Quests) Refreshers() []ledgersync.Refresher {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := appendQuery(nil, q.stats)
	for _, kind := range types.BadgeKinds {
		out = appendQuery(out, q.owned[kind])
	}
	return out
}

// RefetchAll reads every enabled query now, badge addresses included.
func (q *Quests) RefetchAll(ctx context.Context) error {
	var all []ledgersync.Refresher
	for _, kind := range types.BadgeKinds {
		all = appendQuery(all, q.badgeAddr[kind])
	}
	return refetchAll(ctx, append(all, q.Refreshers()...))
}

func (q *Quests) Close() { q.close() }
