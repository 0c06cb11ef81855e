package referral

import (
	"log/slog"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

type Config struct {
	CompletionAward int64
	CallbackSecret  string
}

// Service bundles the referral components over one store.
type Service struct {
	Users      *Users
	Board      *Leaderboard
	Ledger     *Ledger
	Resolver   *Resolver
	Processor  *Processor
	Reconciler *Reconciler
}

func NewService(store types.KeyValueStore, cfg Config, log *slog.Logger) *Service {
	users := NewUsers(store)
	board := NewLeaderboard(store)
	ledger := NewLedger(store)
	return &Service{
		Users:      users,
		Board:      board,
		Ledger:     ledger,
		Resolver:   NewResolver(users, board, log.With("component", "resolver")),
		Processor:  NewProcessor(NewVerifier(cfg.CallbackSecret), ledger, users, board, cfg.CompletionAward, log.With("component", "completion")),
		Reconciler: NewReconciler(ledger, users, board, cfg.CompletionAward, log.With("component", "audit")),
	}
}
