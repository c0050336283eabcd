package http

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmaksimov/beatlink-server/internal/multiplayer"
	"github.com/dmaksimov/beatlink-server/internal/proto"
)

func TestSettingsFromWire(t *testing.T) {
	settings := settingsFromWire(proto.SettingsData{
		Name:            "weekend lobby",
		BeatmapID:       101,
		BeatmapChecksum: "checksum-101",
		RulesetID:       3,
		RequiredMods:    []proto.ModData{{Acronym: "DT"}},
		AllowedMods:     []proto.ModData{{Acronym: "HD"}},
		QueueMode:       "all_players",
		PlaylistItemID:  9,
	})

	assert.Equal(t, "weekend lobby", settings.Name)
	assert.Equal(t, multiplayer.QueueModeAllPlayers, settings.QueueMode)
	assert.Equal(t, []multiplayer.Mod{{Acronym: "DT"}}, settings.RequiredMods)
	assert.Equal(t, []multiplayer.Mod{{Acronym: "HD"}}, settings.AllowedMods)
	assert.Equal(t, int64(9), settings.PlaylistItemID)
}

func TestErrorToWireDomainCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{
			name: "domain error passes its code",
			err:  multiplayer.ErrNotJoinedRoom,
			code: multiplayer.ErrCodeNotJoinedRoom,
		},
		{
			name: "wrapped domain error is unwrapped",
			err:  fmt.Errorf("handler: %w", multiplayer.ErrNotJoinedRoom),
			code: multiplayer.ErrCodeNotJoinedRoom,
		},
		{
			name: "internal errors are masked",
			err:  errors.New("sql: connection reset"),
			code: multiplayer.ErrCodeInvalidOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wireErr := errorToWire(tt.err)
			assert.Equal(t, tt.code, wireErr.Code)
		})
	}
}
