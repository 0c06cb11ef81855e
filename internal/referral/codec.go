package referral

import (
	"encoding/json"
	"fmt"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

func decodeUser(e *types.Entry) (*types.User, error) {
	var u types.User
	if err := json.Unmarshal(e.Value, &u); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Key, err)
	}
	u.JoinedAt = e.CreatedAt
	return &u, nil
}

func encodeUser(u *types.User) (*types.Mutation, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	return &types.Mutation{Value: data, Score: u.Points}, nil
}

func decodeBoardEntry(e *types.Entry) (*types.LeaderboardEntry, error) {
	var b types.LeaderboardEntry
	if err := json.Unmarshal(e.Value, &b); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Key, err)
	}
	b.UpdatedAt = e.UpdatedAt
	return &b, nil
}

func encodeBoardEntry(b *types.LeaderboardEntry) (*types.Mutation, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return &types.Mutation{Value: data, Score: b.Points}, nil
}

func decodeInstall(e *types.Entry) (*types.InstallRecord, error) {
	var r types.InstallRecord
	if err := json.Unmarshal(e.Value, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Key, err)
	}
	r.ProcessedAt = e.CreatedAt
	return &r, nil
}

func encodeInstall(r *types.InstallRecord) (types.Mutation, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return types.Mutation{}, err
	}
	return types.Mutation{Value: data}, nil
}
