package database

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"hrm-reasoner/session"
)

// encMode writes deterministic CBOR with full-precision RFC 3339 timestamps so
// LastUpdated survives a round trip.
var encMode cbor.EncMode

// decMode ignores unknown fields so older binaries can read newer records.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("database: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("database: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeState(st *session.State) ([]byte, error) {
	data, err := encMode.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", st.ID, err)
	}
	return data, nil
}

func decodeState(data []byte) (*session.State, error) {
	var st session.State
	if err := decMode.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &st, nil
}
