package referral

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

type Drift struct {
	UserID      string `json:"user_id"`
	Expected    int64  `json:"expected"`
	UserPoints  int64  `json:"user_points"`
	BoardPoints int64  `json:"board_points"`
}

type AuditReport struct {
	Installs  int       `json:"installs"`
	Credits   int       `json:"credits"`
	Drifts    []Drift   `json:"drifts"`
	CheckedAt time.Time `json:"checked_at"`
}

func (r *AuditReport) Consistent() bool {
	return len(r.Drifts) == 0
}

// Reconciler rebuilds referrer totals from the install ledger and compares
// them with users/ and leaderboard/. It only reports; it never writes.
type Reconciler struct {
	ledger *Ledger
	users  *Users
	board  *Leaderboard
	award  int64
	log    *slog.Logger
}

func NewReconciler(ledger *Ledger, users *Users, board *Leaderboard, award int64, log *slog.Logger) *Reconciler {
	if award <= 0 {
		award = DefaultCompletionAward
	}
	return &Reconciler{ledger: ledger, users: users, board: board, award: award, log: log}
}

// Audit is meaningful only at a quiescent point. Installs processed before
// the referred user existed are skipped; they were answered user_not_found.
func (r *Reconciler) Audit(ctx context.Context) (*AuditReport, error) {
	installs, err := r.ledger.List(ctx)
	if err != nil {
		return nil, err
	}
	userList, err := r.users.List(ctx)
	if err != nil {
		return nil, err
	}
	boardList, err := r.board.All(ctx)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{Installs: len(installs), CheckedAt: time.Now().UTC()}

	users := make(map[string]int, len(userList))
	for i, u := range userList {
		users[u.ID] = i
	}
	expected := make(map[string]int64)
	for _, rec := range installs {
		i, ok := users[rec.UserRefID]
		if !ok {
			continue
		}
		u := userList[i]
		if !u.HasReferrer() || rec.ProcessedAt.Before(u.JoinedAt) {
			continue
		}
		expected[u.Referrer] += r.award
		report.Credits++
	}

	ids := make(map[string]struct{})
	for id := range expected {
		ids[id] = struct{}{}
	}
	userPoints := make(map[string]int64)
	for _, u := range userList {
		if u.Points != 0 {
			ids[u.ID] = struct{}{}
		}
		userPoints[u.ID] = u.Points
	}
	boardPoints := make(map[string]int64)
	for _, b := range boardList {
		if b.Points != 0 {
			ids[b.UserID] = struct{}{}
		}
		boardPoints[b.UserID] = b.Points
	}

	for id := range ids {
		want := expected[id]
		if userPoints[id] != want || boardPoints[id] != want {
			report.Drifts = append(report.Drifts, Drift{
				UserID:      id,
				Expected:    want,
				UserPoints:  userPoints[id],
				BoardPoints: boardPoints[id],
			})
		}
	}
	sort.Slice(report.Drifts, func(i, j int) bool {
		return report.Drifts[i].UserID < report.Drifts[j].UserID
	})

	if report.Consistent() {
		r.log.InfoContext(ctx, "leaderboard audit passed",
			"installs", report.Installs,
			"credits", report.Credits,
		)
	} else {
		r.log.WarnContext(ctx, "leaderboard audit found drift",
			"installs", report.Installs,
			"credits", report.Credits,
			"drifts", len(report.Drifts),
		)
		for _, d := range report.Drifts {
			r.log.WarnContext(ctx, "leaderboard drift",
				"user_id", d.UserID,
				"expected", d.Expected,
				"user_points", d.UserPoints,
				"board_points", d.BoardPoints,
			)
		}
	}
	return report, nil
}
