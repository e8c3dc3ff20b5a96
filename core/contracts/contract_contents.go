package contracts

import (
	"bytes"
	_ "embed"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
)

//go:embed vault.abi.json
var VaultABIContent []byte

//go:embed elemental_game.abi.json
var ElementalGameABIContent []byte

//go:embed prediction_market.abi.json
var PredictionMarketABIContent []byte

//go:embed quest_manager.abi.json
var QuestManagerABIContent []byte

// Deployed addresses on Hedera testnet (chain 296).
const (
	VaultAddress            = "0x07D595FFA6DA87F2b0327195f6f16DD33661990e"
	ElementalGameAddress    = "0x6F00756F10cbDf14dbC05b43404ECaAf8d0dB73f"
	PredictionMarketAddress = "0x1eb7D3769a12CBD08C28FEEF7c4c8ebdAa989756"
	QuestManagerAddress     = "0x27a13464a62195b8aa06a4bedf3a36f3b1d15631"
)

func VaultABI() (abi.ABI, error) { return parse("vault", VaultABIContent) }

func ElementalGameABI() (abi.ABI, error) { return parse("elemental game", ElementalGameABIContent) }

func PredictionMarketABI() (abi.ABI, error) {
	return parse("prediction market", PredictionMarketABIContent)
}

func QuestManagerABI() (abi.ABI, error) { return parse("quest manager", QuestManagerABIContent) }

func parse(name string, content []byte) (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(content))
	if err != nil {
		return abi.ABI{}, errors.Wrapf(err, "parse %s abi", name)
	}
	return parsed, nil
}
