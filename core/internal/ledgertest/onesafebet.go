package ledgertest

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/onesafebet/sdk-go/core/contracts"
	"github.com/onesafebet/sdk-go/core/types"
	"github.com/pkg/errors"
)

// valueToStorage divides a msg.value (18 decimals) down to the 8 decimals
// the contracts store.
var valueToStorage = new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)

// Fixed contract and badge addresses of a Deployment.
var (
	VaultAddress         = common.HexToAddress("0x00000000000000000000000000000000000a0001")
	GameAddress          = common.HexToAddress("0x00000000000000000000000000000000000a0002")
	MarketAddress        = common.HexToAddress("0x00000000000000000000000000000000000a0003")
	QuestsAddress        = common.HexToAddress("0x00000000000000000000000000000000000a0004")
	NoviceBadgeAddress   = common.HexToAddress("0x00000000000000000000000000000000000b0001")
	LoyalistBadgeAddress = common.HexToAddress("0x00000000000000000000000000000000000b0002")
	WhaleBadgeAddress    = common.HexToAddress("0x00000000000000000000000000000000000b0003")
)

// tuple shapes packed by the fake; field names follow the ABI component names
type roundInfo struct {
	Id              *big.Int
	StartTime       *big.Int
	LockTime        *big.Int
	EndTime         *big.Int
	TotalPowerFire  *big.Int
	TotalPowerWater *big.Int
	TotalPowerWind  *big.Int
	TotalYieldPot   *big.Int
	WinningFaction  uint8
	IsResolved      bool
}

type marketInfo struct {
	Id         *big.Int
	Question   string
	Category   string
	CreatedAt  *big.Int
	EndTime    *big.Int
	YesPool    *big.Int
	NoPool     *big.Int
	YesVoters  *big.Int
	NoVoters   *big.Int
	MinStake   *big.Int
	IsResolved bool
	Outcome    bool
	IsActive   bool
}

type marketStake struct {
	choice uint8
	amount *big.Int
}

// Deployment is a simplified model of the four contracts on one Ledger.
type Deployment struct {
	Ledger  *Ledger
	Account common.Address

	mu          sync.Mutex
	now         func() time.Time
	balances    map[common.Address]*big.Int
	totalStaked *big.Int

	roundID      *big.Int
	rounds       map[uint64]*roundInfo
	roundVotes   map[uint64]map[common.Address]uint8
	roundClaimed map[uint64]map[common.Address]bool

	markets       []*marketInfo
	marketVotes   map[uint64]map[common.Address]marketStake
	marketClaimed map[uint64]map[common.Address]bool

	wins   map[common.Address]*big.Int
	streak map[common.Address]*big.Int
	badges map[common.Address]map[common.Address]bool
}

// NewDeployment deploys the contracts on a fresh ledger signed by account.
func NewDeployment(account common.Address) *Deployment {
	d := &Deployment{
		Ledger:        New(Signer{Account: account}),
		Account:       account,
		now:           time.Now,
		balances:      make(map[common.Address]*big.Int),
		totalStaked:   new(big.Int),
		roundID:       new(big.Int),
		rounds:        make(map[uint64]*roundInfo),
		roundVotes:    make(map[uint64]map[common.Address]uint8),
		roundClaimed:  make(map[uint64]map[common.Address]bool),
		marketVotes:   make(map[uint64]map[common.Address]marketStake),
		marketClaimed: make(map[uint64]map[common.Address]bool),
		wins:          make(map[common.Address]*big.Int),
		streak:        make(map[common.Address]*big.Int),
		badges:        make(map[common.Address]map[common.Address]bool),
	}
	d.registerVault()
	d.registerGame()
	d.registerMarket()
	d.registerQuests()
	return d
}

// SetNow replaces the clock used for lock and end times.
func (d *Deployment) SetNow(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

func (d *Deployment) unixNow() *big.Int {
	return big.NewInt(d.now().Unix())
}

// ═══════════════════════════════════════════════════════════════
// VAULT
// ═══════════════════════════════════════════════════════════════

// SetBalance sets the vault balance of user at storage scale.
func (d *Deployment) SetBalance(user common.Address, amount *big.Int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.balanceLocked(user)
	d.totalStaked.Add(d.totalStaked, new(big.Int).Sub(amount, prev))
	d.balances[user] = new(big.Int).Set(amount)
}

// Balance returns the vault balance of user at storage scale.
func (d *Deployment) Balance(user common.Address) *big.Int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return new(big.Int).Set(d.balanceLocked(user))
}

func (d *Deployment) balanceLocked(user common.Address) *big.Int {
	if b, ok := d.balances[user]; ok {
		return b
	}
	return new(big.Int)
}

func (d *Deployment) registerVault() {
	parsed, err := contracts.VaultABI()
	if err != nil {
		panic(err)
	}
	l := d.Ledger
	l.Register(VaultAddress, parsed)

	l.HandleCall(VaultAddress, "getBalance", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		return []any{new(big.Int).Set(d.balanceLocked(args[0].(common.Address)))}, nil
	})
	l.HandleCall(VaultAddress, "balances", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		return []any{new(big.Int).Set(d.balanceLocked(args[0].(common.Address)))}, nil
	})
	l.HandleCall(VaultAddress, "totalStaked", func([]any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		return []any{new(big.Int).Set(d.totalStaked)}, nil
	})
	l.HandleWrite(VaultAddress, "deposit", func(from common.Address, value *big.Int, _ []any) error {
		credit := new(big.Int).Quo(value, valueToStorage)
		if credit.Sign() <= 0 {
			return errors.New("Must deposit something")
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		d.balances[from] = new(big.Int).Add(d.balanceLocked(from), credit)
		d.totalStaked.Add(d.totalStaked, credit)
		return nil
	})
	l.HandleWrite(VaultAddress, "withdraw", func(from common.Address, _ *big.Int, args []any) error {
		amount := args[0].(*big.Int)
		d.mu.Lock()
		defer d.mu.Unlock()
		bal := d.balanceLocked(from)
		if amount.Cmp(bal) > 0 {
			return errors.New("Insufficient balance")
		}
		d.balances[from] = new(big.Int).Sub(bal, amount)
		d.totalStaked.Sub(d.totalStaked, amount)
		return nil
	})
}

// ═══════════════════════════════════════════════════════════════
// ELEMENTAL GAME
// ═══════════════════════════════════════════════════════════════

// StartRound opens round id with the given lock and end times and makes it current.
func (d *Deployment) StartRound(id int64, lockTime, endTime time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roundID = big.NewInt(id)
	d.rounds[uint64(id)] = &roundInfo{
		Id:              big.NewInt(id),
		StartTime:       d.unixNow(),
		LockTime:        big.NewInt(lockTime.Unix()),
		EndTime:         big.NewInt(endTime.Unix()),
		TotalPowerFire:  new(big.Int),
		TotalPowerWater: new(big.Int),
		TotalPowerWind:  new(big.Int),
		TotalYieldPot:   new(big.Int),
	}
}

// SetPools overwrites the faction pools of round id.
func (d *Deployment) SetPools(id int64, fire, water, wind int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.rounds[uint64(id)]
	r.TotalPowerFire = big.NewInt(fire)
	r.TotalPowerWater = big.NewInt(water)
	r.TotalPowerWind = big.NewInt(wind)
}

// ResolveRound marks round id resolved in favor of winner.
func (d *Deployment) ResolveRound(id int64, winner types.Faction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.rounds[uint64(id)]
	r.IsResolved = true
	r.WinningFaction = uint8(winner)
}

// RoundVote returns the faction user voted for in round id.
func (d *Deployment) RoundVote(id int64, user common.Address) types.Faction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return types.Faction(d.roundVotes[uint64(id)][user])
}

func (d *Deployment) registerGame() {
	parsed, err := contracts.ElementalGameABI()
	if err != nil {
		panic(err)
	}
	l := d.Ledger
	l.Register(GameAddress, parsed)

	l.HandleCall(GameAddress, "currentRoundId", func([]any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		return []any{new(big.Int).Set(d.roundID)}, nil
	})
	l.HandleCall(GameAddress, "getRoundInfo", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		id := args[0].(*big.Int).Uint64()
		r, ok := d.rounds[id]
		if !ok {
			r = &roundInfo{
				Id: new(big.Int).SetUint64(id), StartTime: new(big.Int), LockTime: new(big.Int), EndTime: new(big.Int),
				TotalPowerFire: new(big.Int), TotalPowerWater: new(big.Int), TotalPowerWind: new(big.Int), TotalYieldPot: new(big.Int),
			}
		}
		return []any{*r}, nil
	})
	l.HandleCall(GameAddress, "getUserVote", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		return []any{d.roundVotes[args[0].(*big.Int).Uint64()][args[1].(common.Address)]}, nil
	})
	l.HandleCall(GameAddress, "hasClaimed", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		return []any{d.roundClaimed[args[0].(*big.Int).Uint64()][args[1].(common.Address)]}, nil
	})
	l.HandleWrite(GameAddress, "vote", func(from common.Address, _ *big.Int, args []any) error {
		faction := args[0].(uint8)
		d.mu.Lock()
		defer d.mu.Unlock()
		id := d.roundID.Uint64()
		r, ok := d.rounds[id]
		switch {
		case !ok:
			return errors.New("No active round")
		case d.unixNow().Cmp(r.LockTime) >= 0:
			return errors.New("Voting locked")
		case !types.Faction(faction).Valid():
			return errors.New("Invalid faction")
		case d.roundVotes[id][from] != 0:
			return errors.New("Already voted")
		}
		power := d.balanceLocked(from)
		if power.Sign() <= 0 {
			return errors.New("No voting power")
		}
		switch types.Faction(faction) {
		case types.FactionFire:
			r.TotalPowerFire = new(big.Int).Add(r.TotalPowerFire, power)
		case types.FactionWater:
			r.TotalPowerWater = new(big.Int).Add(r.TotalPowerWater, power)
		case types.FactionWind:
			r.TotalPowerWind = new(big.Int).Add(r.TotalPowerWind, power)
		}
		if d.roundVotes[id] == nil {
			d.roundVotes[id] = make(map[common.Address]uint8)
		}
		d.roundVotes[id][from] = faction
		return nil
	})
	l.HandleWrite(GameAddress, "claimReward", func(from common.Address, _ *big.Int, args []any) error {
		id := args[0].(*big.Int).Uint64()
		d.mu.Lock()
		defer d.mu.Unlock()
		r, ok := d.rounds[id]
		switch {
		case !ok || !r.IsResolved:
			return errors.New("Round not resolved")
		case d.roundVotes[id][from] == 0:
			return errors.New("Did not vote")
		case d.roundClaimed[id][from]:
			return errors.New("Already claimed")
		}
		if d.roundClaimed[id] == nil {
			d.roundClaimed[id] = make(map[common.Address]bool)
		}
		d.roundClaimed[id][from] = true
		if d.roundVotes[id][from] == r.WinningFaction {
			d.wins[from] = new(big.Int).Add(d.statLocked(d.wins, from), big.NewInt(1))
			d.streak[from] = new(big.Int).Add(d.statLocked(d.streak, from), big.NewInt(1))
		} else {
			d.streak[from] = new(big.Int)
		}
		return nil
	})
}

// ═══════════════════════════════════════════════════════════════
// PREDICTION MARKET
// ═══════════════════════════════════════════════════════════════

// AddMarket appends an active market and returns its id.
func (d *Deployment) AddMarket(question, category string, endTime time.Time, minStake int64) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addMarketLocked(question, category, big.NewInt(endTime.Unix()), big.NewInt(minStake))
}

func (d *Deployment) addMarketLocked(question, category string, endTime, minStake *big.Int) int64 {
	id := int64(len(d.markets) + 1)
	d.markets = append(d.markets, &marketInfo{
		Id:        big.NewInt(id),
		Question:  question,
		Category:  category,
		CreatedAt: d.unixNow(),
		EndTime:   endTime,
		YesPool:   new(big.Int),
		NoPool:    new(big.Int),
		YesVoters: new(big.Int),
		NoVoters:  new(big.Int),
		MinStake:  minStake,
		IsActive:  true,
	})
	return id
}

// ResolveMarket closes market id with outcome.
func (d *Deployment) ResolveMarket(id int64, outcome bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.markets[id-1]
	m.IsResolved = true
	m.IsActive = false
	m.Outcome = outcome
}

// MarketCount returns the number of markets.
func (d *Deployment) MarketCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.markets)
}

func (d *Deployment) marketLocked(id *big.Int) (*marketInfo, error) {
	if id.Sign() <= 0 || id.Cmp(big.NewInt(int64(len(d.markets)))) > 0 {
		return nil, errors.New("Market does not exist")
	}
	return d.markets[id.Int64()-1], nil
}

func (d *Deployment) registerMarket() {
	parsed, err := contracts.PredictionMarketABI()
	if err != nil {
		panic(err)
	}
	l := d.Ledger
	l.Register(MarketAddress, parsed)

	l.HandleCall(MarketAddress, "getTotalMarkets", func([]any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		return []any{big.NewInt(int64(len(d.markets)))}, nil
	})
	l.HandleCall(MarketAddress, "getMarket", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		m, err := d.marketLocked(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []any{*m}, nil
	})
	l.HandleCall(MarketAddress, "getUserVote", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		s, ok := d.marketVotes[args[0].(*big.Int).Uint64()][args[1].(common.Address)]
		if !ok {
			return []any{uint8(0), new(big.Int)}, nil
		}
		return []any{s.choice, new(big.Int).Set(s.amount)}, nil
	})
	l.HandleCall(MarketAddress, "calculatePotentialWin", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		m, err := d.marketLocked(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		choice, amount := args[1].(bool), args[2].(*big.Int)
		side := m.NoPool
		if choice {
			side = m.YesPool
		}
		total := new(big.Int).Add(m.YesPool, m.NoPool)
		total.Add(total, amount)
		win := new(big.Int).Mul(amount, total)
		return []any{win.Quo(win, new(big.Int).Add(side, amount))}, nil
	})
	l.HandleWrite(MarketAddress, "createMarket", func(_ common.Address, _ *big.Int, args []any) error {
		duration := args[2].(*big.Int)
		if duration.Sign() <= 0 {
			return errors.New("Invalid duration")
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		end := new(big.Int).Add(d.unixNow(), duration)
		d.addMarketLocked(args[0].(string), args[1].(string), end, new(big.Int).Set(args[3].(*big.Int)))
		return nil
	})
	l.HandleWrite(MarketAddress, "vote", func(from common.Address, _ *big.Int, args []any) error {
		id, choice, amount := args[0].(*big.Int), args[1].(bool), args[2].(*big.Int)
		d.mu.Lock()
		defer d.mu.Unlock()
		m, err := d.marketLocked(id)
		if err != nil {
			return err
		}
		switch {
		case !m.IsActive || m.IsResolved || d.unixNow().Cmp(m.EndTime) >= 0:
			return errors.New("Market closed")
		case amount.Cmp(m.MinStake) < 0:
			return errors.New("Below minimum stake")
		case amount.Cmp(d.balanceLocked(from)) > 0:
			return errors.New("Insufficient power")
		}
		votes := d.marketVotes[id.Uint64()]
		if votes == nil {
			votes = make(map[common.Address]marketStake)
			d.marketVotes[id.Uint64()] = votes
		}
		if _, ok := votes[from]; ok {
			return errors.New("Already voted")
		}
		side := uint8(types.VoteNo)
		if choice {
			side = uint8(types.VoteYes)
			m.YesPool = new(big.Int).Add(m.YesPool, amount)
			m.YesVoters = new(big.Int).Add(m.YesVoters, big.NewInt(1))
		} else {
			m.NoPool = new(big.Int).Add(m.NoPool, amount)
			m.NoVoters = new(big.Int).Add(m.NoVoters, big.NewInt(1))
		}
		votes[from] = marketStake{choice: side, amount: new(big.Int).Set(amount)}
		return nil
	})
	l.HandleWrite(MarketAddress, "claimReward", func(from common.Address, _ *big.Int, args []any) error {
		id := args[0].(*big.Int)
		d.mu.Lock()
		defer d.mu.Unlock()
		m, err := d.marketLocked(id)
		if err != nil {
			return err
		}
		s, voted := d.marketVotes[id.Uint64()][from]
		winning := uint8(types.VoteNo)
		if m.Outcome {
			winning = uint8(types.VoteYes)
		}
		switch {
		case !m.IsResolved:
			return errors.New("Market not resolved")
		case !voted || s.choice != winning:
			return errors.New("Nothing to claim")
		case d.marketClaimed[id.Uint64()][from]:
			return errors.New("Already claimed")
		}
		if d.marketClaimed[id.Uint64()] == nil {
			d.marketClaimed[id.Uint64()] = make(map[common.Address]bool)
		}
		d.marketClaimed[id.Uint64()][from] = true
		return nil
	})
}

// ═══════════════════════════════════════════════════════════════
// QUEST MANAGER
// ═══════════════════════════════════════════════════════════════

// SetStats overwrites the quest stats of user.
func (d *Deployment) SetStats(user common.Address, wins, streak int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wins[user] = big.NewInt(wins)
	d.streak[user] = big.NewInt(streak)
}

// GrantBadge gives user the badge at badge.
func (d *Deployment) GrantBadge(user, badge common.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.badges[user] == nil {
		d.badges[user] = make(map[common.Address]bool)
	}
	d.badges[user][badge] = true
}

func (d *Deployment) statLocked(m map[common.Address]*big.Int, user common.Address) *big.Int {
	if v, ok := m[user]; ok {
		return v
	}
	return new(big.Int)
}

func (d *Deployment) registerQuests() {
	parsed, err := contracts.QuestManagerABI()
	if err != nil {
		panic(err)
	}
	l := d.Ledger
	l.Register(QuestsAddress, parsed)

	l.HandleCall(QuestsAddress, "getUserStats", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		user := args[0].(common.Address)
		return []any{new(big.Int).Set(d.statLocked(d.wins, user)), new(big.Int).Set(d.statLocked(d.streak, user))}, nil
	})
	l.HandleCall(QuestsAddress, "hasBadge", func(args []any) ([]any, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		return []any{d.badges[args[0].(common.Address)][args[1].(common.Address)]}, nil
	})
	for method, addr := range map[string]common.Address{
		"noviceBadge":   NoviceBadgeAddress,
		"loyalistBadge": LoyalistBadgeAddress,
		"whaleBadge":    WhaleBadgeAddress,
	} {
		addr := addr
		l.HandleCall(QuestsAddress, method, func([]any) ([]any, error) {
			return []any{addr}, nil
		})
	}
}
