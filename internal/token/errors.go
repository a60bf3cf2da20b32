package token

import "github.com/afurourrego/dungeonflip/internal/chain"

var (
	ErrNotFound     = chain.NewError(chain.KindNotFound, "TokenNotFound", "token does not exist")
	ErrNotApproved  = chain.NewError(chain.KindUnauthorized, "NotApproved", "operator is not approved for this token")
	ErrWrongOwner   = chain.NewError(chain.KindUnauthorized, "NotTokenOwner", "from is not the token owner")
	ErrInvalidStats = chain.NewError(chain.KindInvalidInput, "InvalidStats", "stats outside mint range")
)
