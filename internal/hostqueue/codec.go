package hostqueue

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/politefetch/politefetch/internal/fetchmodel"
	"github.com/politefetch/politefetch/internal/spillqueue"
)

// Metadata values are typed as `any`; gob requires concrete types used
// behind an interface to be registered once up front. This covers the
// value types the surrounding pipeline is documented to carry.
func init() {
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register(time.Time{})
}

// scoredDatumCodec builds the spillqueue.Codec used to persist
// fetchmodel.ScoredUrlDatum to a PerHostQueue's spill file.
//
// gob is used only to marshal the payload bytes inside spillqueue's own
// length-prefixed, checksummed frame (codec.go in that package); the
// framing, not the payload encoding, is what makes spill files robust to
// truncation and corruption.
func scoredDatumCodec() spillqueue.Codec[fetchmodel.ScoredUrlDatum] {
	return spillqueue.Codec[fetchmodel.ScoredUrlDatum]{
		Encode: func(d fetchmodel.ScoredUrlDatum) ([]byte, error) {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(d); err != nil {
				return nil, fmt.Errorf("encode scored url datum: %w", err)
			}
			return buf.Bytes(), nil
		},
		Decode: func(b []byte) (fetchmodel.ScoredUrlDatum, error) {
			var d fetchmodel.ScoredUrlDatum
			if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&d); err != nil {
				return d, fmt.Errorf("decode scored url datum: %w", err)
			}
			return d, nil
		},
	}
}
