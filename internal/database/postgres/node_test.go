package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrumwood/thrumwood/internal/domain"
)

// stubNodeRow feeds scanNode a canned node_instances row without a
// database behind it.
type stubNodeRow struct {
	id, templateKey, roomID string
	sessionPlayer           *string
	sessionRaw              []byte
	cooldownUntil           *time.Time
	lastCycleRun            *time.Time
}

func (r stubNodeRow) Scan(dest ...any) error {
	*dest[0].(*string) = r.id
	*dest[1].(*string) = r.templateKey
	*dest[2].(*string) = r.roomID
	*dest[3].(**string) = r.sessionPlayer
	*dest[4].(*[]byte) = r.sessionRaw
	*dest[5].(**time.Time) = r.cooldownUntil
	*dest[6].(**time.Time) = r.lastCycleRun
	return nil
}

func TestScanNodeDecodesSession(t *testing.T) {
	harvester := "alice"
	started := time.Unix(1_700_000_000, 0).UTC()
	raw, err := json.Marshal(domain.HarvestSession{
		HarvesterID:       harvester,
		StartedAt:         started,
		EffectiveDuration: 45 * time.Second,
	})
	require.NoError(t, err)

	inst, err := scanNode(stubNodeRow{
		id: "node-1", templateKey: "reed_bed", roomID: "glade",
		sessionPlayer: &harvester, sessionRaw: raw,
	})
	require.NoError(t, err)
	require.NotNil(t, inst.Session)
	assert.Equal(t, harvester, inst.Session.HarvesterID)
	assert.Equal(t, started, inst.Session.StartedAt)
	assert.Equal(t, 45*time.Second, inst.Session.EffectiveDuration)
}

func TestScanNodeMalformedSessionReadsAsNone(t *testing.T) {
	harvester := "alice"
	cooldown := time.Unix(1_700_000_500, 0).UTC()

	inst, err := scanNode(stubNodeRow{
		id: "node-1", templateKey: "reed_bed", roomID: "glade",
		sessionPlayer: &harvester,
		sessionRaw:    []byte("{not json"),
		cooldownUntil: &cooldown,
	})
	require.NoError(t, err, "a corrupt session blob must not fail the read")
	assert.Nil(t, inst.Session)

	// The rest of the row still comes through.
	assert.Equal(t, "node-1", inst.ID)
	assert.Equal(t, "reed_bed", inst.TemplateKey)
	assert.Equal(t, "glade", inst.RoomID)
	assert.Equal(t, cooldown, inst.CooldownUntil)
}
