package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"kptv-browser/work/types"
)

// Slot names in the prefs table.
const (
	FavoritesKey = "myFavoriteChannels"
	ViewKey      = "preferredView"
)

// GetPref returns the value stored under key and whether it exists.
func (db *DB) GetPref(key string) (string, bool, error) {
	var value string
	err := db.QueryRow("SELECT value FROM prefs WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read pref %s: %w", key, err)
	}
	return value, true, nil
}

// SetPref stores value under key, replacing any previous value.
func (db *DB) SetPref(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO prefs (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write pref %s: %w", key, err)
	}
	return nil
}

// LoadFavorites reads the favorites slot. A missing slot is an empty list.
func (db *DB) LoadFavorites() ([]types.Channel, error) {
	raw, ok, err := db.GetPref(FavoritesKey)
	if err != nil || !ok {
		return nil, err
	}

	var favorites []types.Channel
	if err := json.Unmarshal([]byte(raw), &favorites); err != nil {
		return nil, fmt.Errorf("failed to decode favorites: %w", err)
	}
	return favorites, nil
}

// SaveFavorites overwrites the favorites slot with the full records.
func (db *DB) SaveFavorites(favorites []types.Channel) error {
	if favorites == nil {
		favorites = []types.Channel{}
	}
	data, err := json.Marshal(favorites)
	if err != nil {
		return fmt.Errorf("failed to encode favorites: %w", err)
	}
	return db.SetPref(FavoritesKey, string(data))
}

// LoadViewMode reads the view preference and whether one was stored.
func (db *DB) LoadViewMode() (types.ViewMode, bool, error) {
	raw, ok, err := db.GetPref(ViewKey)
	if err != nil || !ok {
		return types.ViewList, false, err
	}
	return types.ParseViewMode(raw), true, nil
}

// SaveViewMode stores the view preference.
func (db *DB) SaveViewMode(mode types.ViewMode) error {
	return db.SetPref(ViewKey, string(types.ParseViewMode(string(mode))))
}
