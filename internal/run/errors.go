package run

import "github.com/afurourrego/dungeonflip/internal/chain"

var (
	ErrUnknownRun         = chain.NewError(chain.KindNotFound, "RunNotFound", "token has no run session")
	ErrNotOwner           = chain.NewError(chain.KindUnauthorized, "NotOwner", "caller does not own the token")
	ErrNotOccupant        = chain.NewError(chain.KindUnauthorized, "NotOccupyingWallet", "caller is not the wallet running this token")
	ErrAlreadyActive      = chain.NewError(chain.KindInvalidState, "AlreadyActive", "wallet already has an active or paused run")
	ErrIncorrectFee       = chain.NewError(chain.KindInvalidInput, "IncorrectFee", "payment does not match the entry fee")
	ErrInvalidResumeState = chain.NewError(chain.KindInvalidState, "InvalidResumeState", "run can not be resumed")
	ErrNotActive          = chain.NewError(chain.KindInvalidState, "NotActive", "run is not active")
	ErrNotDeposited       = chain.NewError(chain.KindInvalidState, "NotDeposited", "token is not deposited")
	ErrZeroHP             = chain.NewError(chain.KindInvalidState, "ZeroHP", "adventurer has no hit points left")
	ErrInvalidCardIndex   = chain.NewError(chain.KindInvalidInput, "InvalidCardIndex", "card index out of range")
	ErrDungeonCleared     = chain.NewError(chain.KindInvalidState, "DungeonCleared", "every room has been cleared; exit the dungeon")
	ErrNotDead            = chain.NewError(chain.KindInvalidState, "NotDead", "run has not ended in death")
	ErrClaimRequired      = chain.NewError(chain.KindInvalidState, "ClaimRequired", "claim the token after death first")
	ErrCustodyMismatch    = chain.NewError(chain.KindInvalidState, "CustodyMismatch", "engine does not hold the token")
)
