package service

import (
	"context"

	"github.com/mschirtzinger/daysync/internal/cloud"
	"github.com/mschirtzinger/daysync/internal/storage"
)

// SyncStatus summarizes the sync bookkeeping of this device.
type SyncStatus struct {
	DeviceID   string     `json:"deviceId"`
	DeviceName string     `json:"deviceName"`
	LastSyncAt string     `json:"lastSyncAt,omitempty"`
	SyncedWith string     `json:"syncedWith,omitempty"`
	Remote     cloud.Type `json:"remote,omitempty"`
	LoggedIn   bool       `json:"loggedIn"`
	Todos      int        `json:"todos"`
	Backend    string     `json:"backend"`
	Migrated   bool       `json:"migrated"`
}

// GetSyncStatus reads the bookkeeping settings. Missing values are left
// empty.
func (s *Service) GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	st := &SyncStatus{Backend: s.adapter.Name()}

	id, err := s.identity.Identity()
	if err != nil {
		return nil, err
	}
	st.DeviceID, st.DeviceName = id.DeviceID, id.DeviceName

	if st.LastSyncAt, _, err = storage.GetSettingAs[string](ctx, s.adapter, storage.KeyLastSyncAt); err != nil {
		return nil, err
	}
	if st.SyncedWith, _, err = storage.GetSettingAs[string](ctx, s.adapter, storage.KeySyncedWith); err != nil {
		return nil, err
	}
	if st.Migrated, _, err = storage.GetSettingAs[bool](ctx, s.adapter, storage.KeyMigrationCompleted); err != nil {
		return nil, err
	}

	todos, err := s.adapter.GetTodos(ctx)
	if err != nil {
		return nil, err
	}
	st.Todos = len(todos)

	cfg, ok, err := s.GetRemoteConfig(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		st.Remote = cfg.Type
		if cfg.Type.IsOAuth() {
			p, err := s.Provider(ctx, cfg)
			if err == nil {
				st.LoggedIn = p.IsAuthenticated()
			}
		} else {
			st.LoggedIn = cfg.Validate() == nil
		}
	}
	return st, nil
}
