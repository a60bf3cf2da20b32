package progress

import "github.com/afurourrego/dungeonflip/internal/chain"

var (
	ErrUnknownPlayer = chain.NewError(chain.KindNotFound, "UnknownPlayer", "player has never been scored")
	ErrUnknownWeek   = chain.NewError(chain.KindNotFound, "UnknownWeek", "week has not started")
)
