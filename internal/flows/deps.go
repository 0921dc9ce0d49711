package flows

import (
	"context"

	"github.com/MrEthical07/authcore/token"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Login    LoginDeps
	Register RegisterDeps
	Refresh  RefreshDeps
	Social   SocialDeps
}

// IssueFunc mints a token pair for a user. Errors are already mapped to the
// engine's taxonomy.
type IssueFunc func(ctx context.Context, userID string, device token.DeviceContext) (token.Pair, error)

func warnOrDiscard(w func(string, ...any)) func(string, ...any) {
	if w == nil {
		return func(string, ...any) {}
	}
	return w
}
