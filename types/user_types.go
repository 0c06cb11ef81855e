package types

import "time"

type User struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"display_name,omitempty"`
	Referrer          string    `json:"referrer,omitempty"`
	Points            int64     `json:"points"`
	CompletedInstalls int64     `json:"completed_installs"`
	TaskCompleted     bool      `json:"task_completed"`
	JoinedAt          time.Time `json:"-"`
}

func (u *User) HasReferrer() bool {
	return u.Referrer != "" && u.Referrer != u.ID
}

type LeaderboardEntry struct {
	UserID      string    `json:"user_id"`
	Points      int64     `json:"points"`
	DisplayName string    `json:"display_name,omitempty"`
	UpdatedAt   time.Time `json:"-"`
}

type InstallRecord struct {
	InstallID      string    `json:"install_id"`
	UserRefID      string    `json:"user_ref_id"`
	ProviderStatus string    `json:"provider_status"`
	ProcessedAt    time.Time `json:"-"`
}
