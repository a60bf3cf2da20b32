package rewards

import "github.com/afurourrego/dungeonflip/internal/chain"

var (
	ErrTooEarly           = chain.NewError(chain.KindInvalidState, "TooEarly", "minimum week interval has not elapsed")
	ErrNoClosedWeek       = chain.NewError(chain.KindInvalidState, "NoClosedWeek", "no week has been closed yet")
	ErrAlreadyDistributed = chain.NewError(chain.KindInvalidState, "AlreadyDistributed", "week has already been distributed")
	ErrNoWinners          = chain.NewError(chain.KindInvalidInput, "NoWinners", "every slot is the no-winner sentinel")
	ErrDuplicateWinner    = chain.NewError(chain.KindInvalidInput, "DuplicateWinner", "a winner appears in more than one slot")
	ErrUnknownWeek        = chain.NewError(chain.KindNotFound, "UnknownWeek", "no history for week")
)
