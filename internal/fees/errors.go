package fees

import "github.com/afurourrego/dungeonflip/internal/chain"

var (
	ErrNoBalance    = chain.NewError(chain.KindInvalidState, "NoBalance", "bucket is empty")
	ErrInvalidSplit = chain.NewError(chain.KindInvalidInput, "InvalidSplit", "split percentages must sum to 100")
)
