package referral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

const DefaultCompletionAward int64 = 1

// flexString accepts both JSON strings and numbers; providers disagree on
// how they encode ids.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type CallbackPayload struct {
	InstallID      string
	UserRefID      string
	ProviderStatus string
}

func (p *CallbackPayload) UnmarshalJSON(data []byte) error {
	var raw struct {
		InstallID      flexString `json:"installId"`
		UserRefID      flexString `json:"userRefId"`
		ProviderStatus flexString `json:"providerStatus"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.InstallID = string(raw.InstallID)
	p.UserRefID = string(raw.UserRefID)
	p.ProviderStatus = string(raw.ProviderStatus)
	return nil
}

type Result struct {
	State      types.CompletionState `json:"state"`
	Outcome    types.Outcome         `json:"outcome,omitempty"`
	InstallID  string                `json:"install_id,omitempty"`
	UserRefID  string                `json:"user_ref_id,omitempty"`
	ReferrerID string                `json:"referrer_id,omitempty"`
	Awarded    int64                 `json:"awarded,omitempty"`
}

// Processor runs one provider callback through
// received → validated → ledgered → user_updated → credited → done.
// The ledger write is the commit point: a fault after it loses the credit
// rather than risking a second one on retry.
type Processor struct {
	verifier *Verifier
	ledger   *Ledger
	users    *Users
	board    *Leaderboard
	award    int64
	log      *slog.Logger
}

func NewProcessor(verifier *Verifier, ledger *Ledger, users *Users, board *Leaderboard, award int64, log *slog.Logger) *Processor {
	if award <= 0 {
		award = DefaultCompletionAward
	}
	return &Processor{
		verifier: verifier,
		ledger:   ledger,
		users:    users,
		board:    board,
		award:    award,
		log:      log,
	}
}

func (p *Processor) Award() int64 {
	return p.award
}

// HandleCallback authenticates the raw body before looking at it.
func (p *Processor) HandleCallback(ctx context.Context, body []byte, signature string) (*Result, error) {
	if err := p.verifier.Verify(body, signature); err != nil {
		p.log.WarnContext(ctx, "provider callback rejected",
			"event", "security",
			"reason", err.Error(),
			"body_size", len(body),
		)
		return &Result{State: types.StateRejected}, newError(KindAuth, "verify signature", err)
	}

	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return &Result{State: types.StateRejected}, newError(KindValidation, "decode callback", err)
	}
	return p.Process(ctx, payload)
}

// Process runs an already authenticated callback.
func (p *Processor) Process(ctx context.Context, payload CallbackPayload) (*Result, error) {
	installID := strings.TrimSpace(payload.InstallID)
	userRefID := strings.TrimSpace(payload.UserRefID)
	res := &Result{State: types.StateReceived, InstallID: installID, UserRefID: userRefID}

	var missing []string
	if installID == "" {
		missing = append(missing, "installId")
	}
	if userRefID == "" {
		missing = append(missing, "userRefId")
	}
	if len(missing) > 0 {
		res.State = types.StateRejected
		return res, newError(KindValidation, "validate callback", fmt.Errorf("missing fields: %s", strings.Join(missing, ", ")))
	}
	res.State = types.StateValidated

	status := strings.ToLower(strings.TrimSpace(payload.ProviderStatus))
	if status == "" {
		status = types.StatusCompleted
	}
	if !types.IsCreditingStatus(status) {
		res.State = types.StateIgnored
		res.Outcome = types.OutcomeIgnored
		p.log.InfoContext(ctx, "provider status ignored", "install_id", installID, "status", status)
		return res, nil
	}

	committed, err := p.ledger.TryCommit(ctx, installID, userRefID, status)
	if err != nil {
		return res, p.fault(ctx, res, "commit install", err)
	}
	if !committed {
		res.State = types.StateDuplicate
		res.Outcome = types.OutcomeDuplicate
		p.log.InfoContext(ctx, "duplicate install callback", "install_id", installID, "user_ref_id", userRefID)
		return res, nil
	}
	res.State = types.StateLedgered

	user, err := p.users.update(ctx, userRefID, func(u *types.User, exists bool) bool {
		if !exists {
			return false
		}
		u.CompletedInstalls++
		u.TaskCompleted = true
		return true
	})
	if isNotFound(err) {
		res.State = types.StateDone
		res.Outcome = types.OutcomeUserNotFound
		p.log.WarnContext(ctx, "install for unknown user",
			"install_id", installID,
			"user_ref_id", userRefID,
		)
		return res, nil
	}
	if err != nil {
		return res, p.fault(ctx, res, "update user", err)
	}
	res.State = types.StateUserUpdated

	if !user.HasReferrer() {
		res.State = types.StateDone
		res.Outcome = types.OutcomeNoReferrer
		return res, nil
	}
	res.ReferrerID = user.Referrer

	referrer, err := p.users.update(ctx, user.Referrer, func(u *types.User, _ bool) bool {
		u.Points += p.award
		return true
	})
	if err != nil {
		return res, p.fault(ctx, res, "credit referrer", err)
	}
	if _, err := p.board.Credit(ctx, referrer.ID, p.award, referrer.DisplayName); err != nil {
		return res, p.fault(ctx, res, "credit leaderboard", err)
	}
	res.State = types.StateCredited
	res.Awarded = p.award

	p.log.InfoContext(ctx, "referrer credited",
		"install_id", installID,
		"user_ref_id", userRefID,
		"referrer_id", referrer.ID,
		"points", referrer.Points,
	)

	res.State = types.StateDone
	res.Outcome = types.OutcomeCredited
	return res, nil
}

func (p *Processor) fault(ctx context.Context, res *Result, op string, err error) error {
	level := slog.LevelError
	if errors.Is(err, context.Canceled) {
		level = slog.LevelWarn
	}
	p.log.Log(ctx, level, "completion processing failed",
		"op", op,
		"state", string(res.State),
		"install_id", res.InstallID,
		"user_ref_id", res.UserRefID,
		"referrer_id", res.ReferrerID,
		"ledgered", res.State != types.StateValidated,
		"error", err,
	)
	return newError(KindStoreFault, op, err)
}
